package middleware

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/vyrodovalexey/grpckit/internal/observability"
)

const testMethod = "/demo.v1.Demo/Get"

// mockServerStream records headers and trailers set on it.
type mockServerStream struct {
	grpc.ServerStream
	ctx     context.Context
	header  metadata.MD
	trailer metadata.MD
}

func newMockServerStream(ctx context.Context) *mockServerStream {
	return &mockServerStream{ctx: ctx, header: metadata.MD{}, trailer: metadata.MD{}}
}

func (m *mockServerStream) Context() context.Context { return m.ctx }

func (m *mockServerStream) SetHeader(md metadata.MD) error {
	m.header = metadata.Join(m.header, md)
	return nil
}

func (m *mockServerStream) SendHeader(md metadata.MD) error {
	return m.SetHeader(md)
}

func (m *mockServerStream) SetTrailer(md metadata.MD) {
	m.trailer = metadata.Join(m.trailer, md)
}

func unaryInfo() *grpc.UnaryServerInfo {
	return &grpc.UnaryServerInfo{FullMethod: testMethod}
}

func streamInfo() *grpc.StreamServerInfo {
	return &grpc.StreamServerInfo{FullMethod: testMethod, IsServerStream: true}
}

func incoming(kv ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(kv...))
}

func observedLogger(t *testing.T) (observability.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	return observability.NewZapLogger(zap.New(core)), logs
}

func nopLogger() observability.Logger {
	return observability.NopLogger()
}

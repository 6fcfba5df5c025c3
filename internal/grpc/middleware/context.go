package middleware

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"

	"github.com/vyrodovalexey/grpckit/internal/observability"
)

// ensureCallInfo returns the CallInfo of the call, attaching a new one
// when the call has none yet.
func ensureCallInfo(ctx context.Context, method string) (context.Context, *observability.CallInfo) {
	if info := observability.CallInfoFromContext(ctx); info != nil {
		return ctx, info
	}
	info := &observability.CallInfo{Method: method, StartTime: time.Now()}
	return observability.ContextWithCallInfo(ctx, info), info
}

// splitMethod splits "/package.Service/Method" into service and method.
func splitMethod(fullMethod string) (service, method string) {
	trimmed := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndex(trimmed, "/"); i > 0 {
		return trimmed[:i], trimmed[i+1:]
	}
	return "unknown", trimmed
}

// wrappedStream overrides the context of a server stream.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the overridden context.
func (s *wrappedStream) Context() context.Context {
	return s.ctx
}

func wrapStream(stream grpc.ServerStream, ctx context.Context) grpc.ServerStream {
	if ws, ok := stream.(*wrappedStream); ok {
		return &wrappedStream{ServerStream: ws.ServerStream, ctx: ctx}
	}
	return &wrappedStream{ServerStream: stream, ctx: ctx}
}

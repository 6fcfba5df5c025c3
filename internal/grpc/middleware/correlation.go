package middleware

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/vyrodovalexey/grpckit/internal/observability"
)

// CorrelationIDMetadataKey is the metadata key of the correlation ID, read
// from requests and echoed in response headers and trailers.
const CorrelationIDMetadataKey = "correlation-id"

// legacyRequestIDKey is accepted as an inbound fallback.
const legacyRequestIDKey = "x-request-id"

const maxCorrelationIDLength = 128

// incomingCorrelationID returns the correlation ID sent by the caller, or a
// new one.
func incomingCorrelationID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for _, key := range []string{CorrelationIDMetadataKey, legacyRequestIDKey} {
			if v := md.Get(key); len(v) > 0 {
				if id := strings.TrimSpace(v[0]); id != "" && len(id) <= maxCorrelationIDLength {
					return id
				}
			}
		}
	}
	return uuid.NewString()
}

func withCorrelationID(ctx context.Context, method string) (context.Context, string) {
	ctx, call := ensureCallInfo(ctx, method)
	id := incomingCorrelationID(ctx)
	call.CorrelationID = id
	return observability.ContextWithCorrelationID(ctx, id), id
}

// UnaryCorrelationInterceptor returns a unary server interceptor that
// attaches a correlation ID to the call and echoes it to the caller.
func UnaryCorrelationInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		ctx, id := withCorrelationID(ctx, info.FullMethod)

		md := metadata.Pairs(CorrelationIDMetadataKey, id)
		_ = grpc.SetHeader(ctx, md)
		_ = grpc.SetTrailer(ctx, md)

		return handler(ctx, req)
	}
}

// StreamCorrelationInterceptor returns a stream server interceptor that
// attaches a correlation ID to the stream and echoes it to the caller.
func StreamCorrelationInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, id := withCorrelationID(stream.Context(), info.FullMethod)

		md := metadata.Pairs(CorrelationIDMetadataKey, id)
		_ = stream.SetHeader(md)
		stream.SetTrailer(md)

		return handler(srv, wrapStream(stream, ctx))
	}
}

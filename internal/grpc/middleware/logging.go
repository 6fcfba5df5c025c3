package middleware

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vyrodovalexey/grpckit/internal/observability"
)

func logStart(ctx context.Context, logger observability.Logger, method string, stream bool) {
	logger.WithContext(ctx).Info("call started",
		observability.String("method", method),
		observability.Bool("stream", stream),
	)
}

func logEnd(ctx context.Context, logger observability.Logger, method string, err error, start time.Time) {
	code := status.Code(err)
	fields := []observability.Field{
		observability.String("method", method),
		observability.String("code", code.String()),
		observability.Duration("duration", time.Since(start)),
	}

	l := logger.WithContext(ctx)
	switch code {
	case codes.OK:
		l.Info("call completed", fields...)
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		l.Error("call completed", append(fields, observability.Error(err))...)
	default:
		l.Warn("call completed", append(fields, observability.String("message", status.Convert(err).Message()))...)
	}
}

// UnaryLoggingInterceptor returns a unary server interceptor that logs the
// start and the end of every call.
func UnaryLoggingInterceptor(logger observability.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		ctx, call := ensureCallInfo(ctx, info.FullMethod)
		start := time.Now()

		logStart(ctx, logger, info.FullMethod, false)
		resp, err := handler(ctx, req)
		logEnd(ctx, logger, call.Method, err, start)

		return resp, err
	}
}

// StreamLoggingInterceptor returns a stream server interceptor that logs the
// start and the end of every stream.
func StreamLoggingInterceptor(logger observability.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, call := ensureCallInfo(stream.Context(), info.FullMethod)
		start := time.Now()

		logStart(ctx, logger, info.FullMethod, true)
		err := handler(srv, wrapStream(stream, ctx))
		logEnd(ctx, logger, call.Method, err, start)

		return err
	}
}

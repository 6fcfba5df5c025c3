package middleware

import (
	"context"
	"errors"
	"runtime/debug"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vyrodovalexey/grpckit/internal/apperror"
	"github.com/vyrodovalexey/grpckit/internal/observability"
)

// translateError converts a handler error into a gRPC status error exactly
// once. Unclassified errors are logged in full and reach the caller only as
// a generic INTERNAL status, unless the call's own deadline or cancellation
// explains the failure.
func translateError(ctx context.Context, logger observability.Logger, method string, err error) error {
	st, classified := apperror.ToStatus(err)
	if classified {
		return st.Err()
	}

	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	case errors.Is(ctxErr, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	}

	logger.WithContext(ctx).Error("unhandled error",
		observability.String("method", method),
		observability.Error(err),
	)
	return st.Err()
}

func recoverPanic(ctx context.Context, logger observability.Logger, method string, r interface{}) error {
	logger.WithContext(ctx).Error("panic recovered",
		observability.String("method", method),
		observability.Any("panic", r),
		observability.String("stack", string(debug.Stack())),
	)
	return status.Error(codes.Internal, apperror.InternalMessage)
}

// UnaryErrorInterceptor returns a unary server interceptor that maps
// handler errors onto gRPC statuses and turns panics into INTERNAL.
func UnaryErrorInterceptor(logger observability.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				resp, err = nil, recoverPanic(ctx, logger, info.FullMethod, r)
			}
		}()

		resp, err = handler(ctx, req)
		if err != nil {
			return nil, translateError(ctx, logger, info.FullMethod, err)
		}
		return resp, nil
	}
}

// StreamErrorInterceptor returns a stream server interceptor that maps
// handler errors onto gRPC statuses and turns panics into INTERNAL.
func StreamErrorInterceptor(logger observability.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		ctx := stream.Context()
		defer func() {
			if r := recover(); r != nil {
				err = recoverPanic(ctx, logger, info.FullMethod, r)
			}
		}()

		if err = handler(srv, stream); err != nil {
			return translateError(ctx, logger, info.FullMethod, err)
		}
		return nil
	}
}

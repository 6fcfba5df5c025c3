package apperror

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// InternalMessage is the message returned to callers for unclassified failures.
const InternalMessage = "internal server error"

// Code maps a kind onto its gRPC status code.
func (k Kind) Code() codes.Code {
	switch k {
	case KindInvalidInput:
		return codes.InvalidArgument
	case KindPermissionDenied:
		return codes.PermissionDenied
	case KindNotFound:
		return codes.NotFound
	case KindTimeout:
		return codes.DeadlineExceeded
	case KindUnauthenticated:
		return codes.Unauthenticated
	case KindResourceExhausted:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// ToStatus converts err into a gRPC status. The mapping is total:
//   - nil yields OK;
//   - an error already carrying a gRPC status is passed through;
//   - context deadline and cancellation map to DEADLINE_EXCEEDED and CANCELED;
//   - typed errors map by kind and keep their message;
//   - anything else becomes INTERNAL with a generic message.
//
// The second return value reports whether err was classified; callers log
// the original error when it was not.
func ToStatus(err error) (st *status.Status, classified bool) {
	defer func() {
		if r := recover(); r != nil {
			st, classified = status.New(codes.Internal, InternalMessage), false
		}
	}()

	if err == nil {
		return status.New(codes.OK, ""), true
	}

	if s, ok := status.FromError(err); ok {
		return s, true
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		if appErr.Kind == KindInternal {
			return status.New(codes.Internal, InternalMessage), false
		}
		return status.New(appErr.Kind.Code(), appErr.Message), true
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, "deadline exceeded"), true
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, "request canceled"), true
	}

	kind := KindOf(err)
	if kind == KindInternal {
		return status.New(codes.Internal, InternalMessage), false
	}
	return status.New(kind.Code(), err.Error()), true
}

// ToStatusError is ToStatus returning the status as an error (nil for nil).
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := ToStatus(err)
	return st.Err()
}

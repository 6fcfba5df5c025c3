// Package apperror defines the application error taxonomy shared by
// servicers and the runtime, and its mapping onto gRPC status codes.
//
// # Error Conventions
//
// Servicer code returns typed errors instead of building status values:
//
//	if user == nil {
//	    return nil, apperror.NotFound("user %q not found", id)
//	}
//
//   - Sentinel errors (ErrNotFound, ErrInvalidInput, ...) identify a Kind and
//     are checked with errors.Is.
//   - *Error carries a Kind, a human-readable message and an optional cause.
//     It implements Error(), Unwrap() and Is().
//   - fmt.Errorf with %w keeps the Kind visible through wrapping.
//
// ToStatus converts any error into a *status.Status exactly once, at the
// edge of the call.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind int

const (
	// KindInternal is an unexpected or unclassified failure.
	KindInternal Kind = iota
	// KindInvalidInput means the client sent malformed or out-of-range data.
	KindInvalidInput
	// KindPermissionDenied means the caller is authenticated but not authorized.
	KindPermissionDenied
	// KindNotFound means a referenced entity is absent.
	KindNotFound
	// KindTimeout means an operation exceeded its deadline.
	KindTimeout
	// KindUnauthenticated means the caller identity is missing or invalid.
	KindUnauthenticated
	// KindResourceExhausted means a quota was exceeded.
	KindResourceExhausted
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindResourceExhausted:
		return "resource_exhausted"
	default:
		return "internal"
	}
}

// Sentinel errors, one per kind.
var (
	ErrInternal          = errors.New("internal error")
	ErrInvalidInput      = errors.New("invalid input")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrNotFound          = errors.New("not found")
	ErrTimeout           = errors.New("timeout")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrResourceExhausted = errors.New("resource exhausted")
)

var sentinels = map[Kind]error{
	KindInternal:          ErrInternal,
	KindInvalidInput:      ErrInvalidInput,
	KindPermissionDenied:  ErrPermissionDenied,
	KindNotFound:          ErrNotFound,
	KindTimeout:           ErrTimeout,
	KindUnauthenticated:   ErrUnauthenticated,
	KindResourceExhausted: ErrResourceExhausted,
}

// lookupOrder fixes the precedence used when an error matches several sentinels.
var lookupOrder = []Kind{
	KindUnauthenticated,
	KindResourceExhausted,
	KindPermissionDenied,
	KindInvalidInput,
	KindNotFound,
	KindTimeout,
}

// Error is a typed application error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for this error's kind or
// another *Error of the same kind.
func (e *Error) Is(target error) bool {
	if target == sentinels[e.Kind] {
		return true
	}
	if t, ok := target.(*Error); ok {
		return t.Kind == e.Kind
	}
	return false
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind with a cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// InvalidInput creates a KindInvalidInput error.
func InvalidInput(format string, args ...any) *Error {
	return New(KindInvalidInput, format, args...)
}

// PermissionDenied creates a KindPermissionDenied error.
func PermissionDenied(format string, args ...any) *Error {
	return New(KindPermissionDenied, format, args...)
}

// NotFound creates a KindNotFound error.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Timeout creates a KindTimeout error.
func Timeout(format string, args ...any) *Error {
	return New(KindTimeout, format, args...)
}

// Unauthenticated creates a KindUnauthenticated error.
func Unauthenticated(format string, args ...any) *Error {
	return New(KindUnauthenticated, format, args...)
}

// ResourceExhausted creates a KindResourceExhausted error.
func ResourceExhausted(format string, args ...any) *Error {
	return New(KindResourceExhausted, format, args...)
}

// Internal creates a KindInternal error.
func Internal(format string, args ...any) *Error {
	return New(KindInternal, format, args...)
}

// KindOf returns the kind of err. Errors outside the taxonomy are KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	for _, kind := range lookupOrder {
		if errors.Is(err, sentinels[kind]) {
			return kind
		}
	}
	return KindInternal
}

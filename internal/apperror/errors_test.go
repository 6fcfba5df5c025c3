package apperror

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestKind_String(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindInternal, "internal"},
		{KindInvalidInput, "invalid_input"},
		{KindPermissionDenied, "permission_denied"},
		{KindNotFound, "not_found"},
		{KindTimeout, "timeout"},
		{KindUnauthenticated, "unauthenticated"},
		{KindResourceExhausted, "resource_exhausted"},
		{Kind(99), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.kind.String())
		})
	}
}

func TestError_IsAndUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("db down")
	err := Wrap(KindNotFound, cause, "user %s", "42")

	assert.Equal(t, "user 42: db down", err.Error())
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrInvalidInput))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, &Error{Kind: KindNotFound}))
	assert.Equal(t, "bad id", InvalidInput("bad %s", "id").Error())
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected Kind
	}{
		{"typed", PermissionDenied("no"), KindPermissionDenied},
		{"wrapped typed", fmt.Errorf("ctx: %w", Timeout("slow")), KindTimeout},
		{"sentinel", ErrResourceExhausted, KindResourceExhausted},
		{"wrapped sentinel", fmt.Errorf("load: %w", ErrNotFound), KindNotFound},
		{"foreign", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, KindOf(tt.err))
		})
	}
}

func TestToStatus_Mapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		code       codes.Code
		message    string
		classified bool
	}{
		{"nil", nil, codes.OK, "", true},
		{"invalid input", InvalidInput("name is empty"), codes.InvalidArgument, "name is empty", true},
		{"permission denied", PermissionDenied("admins only"), codes.PermissionDenied, "admins only", true},
		{"not found", NotFound("no such item"), codes.NotFound, "no such item", true},
		{"timeout", Timeout("took too long"), codes.DeadlineExceeded, "took too long", true},
		{"unauthenticated", Unauthenticated("who?"), codes.Unauthenticated, "who?", true},
		{"exhausted", ResourceExhausted("slow down"), codes.ResourceExhausted, "slow down", true},
		{"typed internal", Internal("secret detail"), codes.Internal, InternalMessage, false},
		{"sentinel", fmt.Errorf("lookup: %w", ErrNotFound), codes.NotFound, "lookup: not found", true},
		{"context deadline", context.DeadlineExceeded, codes.DeadlineExceeded, "deadline exceeded", true},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), codes.DeadlineExceeded, "deadline exceeded", true},
		{"context canceled", context.Canceled, codes.Canceled, "request canceled", true},
		{"unknown", errors.New("stack trace here"), codes.Internal, InternalMessage, false},
		{"existing status", status.Error(codes.Aborted, "retry"), codes.Aborted, "retry", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			st, classified := ToStatus(tt.err)
			require.NotNil(t, st)
			assert.Equal(t, tt.code, st.Code())
			assert.Equal(t, tt.message, st.Message())
			assert.Equal(t, tt.classified, classified)
		})
	}
}

func TestToStatusError(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ToStatusError(nil))

	err := ToStatusError(NotFound("gone"))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

type panickyError struct{}

func (panickyError) Error() string { panic("broken error") }

func TestToStatus_NeverPanics(t *testing.T) {
	t.Parallel()

	var st *status.Status
	assert.NotPanics(t, func() {
		st, _ = ToStatus(fmt.Errorf("wrap: %w", panickyError{}))
	})
	assert.Equal(t, codes.Internal, st.Code())
}

package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vyrodovalexey/grpckit/internal/observability"
)

const (
	testJWTSecret = "test-secret-with-enough-entropy"
	healthCheck   = "/grpc.health.v1.Health/Check"
)

func signToken(t *testing.T, secret, subject string, exp time.Time) string {
	t.Helper()

	b := jwt.NewBuilder().Expiration(exp)
	if subject != "" {
		b = b.Subject(subject)
	}
	tok, err := b.Build()
	require.NoError(t, err)

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte(secret)))
	require.NoError(t, err)
	return string(signed)
}

func TestAuthenticator_Authenticate(t *testing.T) {
	t.Parallel()

	plain := NewAuthenticator(nil)
	withJWT := NewAuthenticator(nil, WithJWTSecret(testJWTSecret))

	valid := signToken(t, testJWTSecret, "alice", time.Now().Add(time.Hour))
	expired := signToken(t, testJWTSecret, "alice", time.Now().Add(-time.Hour))
	foreign := signToken(t, "another-secret", "alice", time.Now().Add(time.Hour))
	noSubject := signToken(t, testJWTSecret, "", time.Now().Add(time.Hour))

	tests := []struct {
		name    string
		auth    *Authenticator
		ctx     context.Context
		want    string
		wantErr error
	}{
		{"no metadata", plain, context.Background(), "", ErrNoCredentials},
		{"user id header", plain, incoming(UserIDMetadataKey, "u-1"), "u-1", nil},
		{"blank user id", plain, incoming(UserIDMetadataKey, "  "), "", ErrNoCredentials},
		{"bearer token", withJWT, incoming(AuthorizationMetadataKey, "Bearer "+valid), "alice", nil},
		{"lowercase scheme", withJWT, incoming(AuthorizationMetadataKey, "bearer "+valid), "alice", nil},
		{"user id ignored with jwt", withJWT, incoming(UserIDMetadataKey, "u-1"), "", ErrNoCredentials},
		{"expired token", withJWT, incoming(AuthorizationMetadataKey, "Bearer "+expired), "", ErrInvalidToken},
		{"wrong key", withJWT, incoming(AuthorizationMetadataKey, "Bearer "+foreign), "", ErrInvalidToken},
		{"missing subject", withJWT, incoming(AuthorizationMetadataKey, "Bearer "+noSubject), "", ErrInvalidToken},
		{"basic scheme", withJWT, incoming(AuthorizationMetadataKey, "Basic abc"), "", ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.auth.Authenticate(tt.ctx)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnaryAuthInterceptor_RejectsBeforeHandler(t *testing.T) {
	t.Parallel()

	interceptor := NewAuthenticator([]string{healthCheck}).UnaryInterceptor()

	calls := 0
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		calls++
		return "ok", nil
	}

	_, err := interceptor(context.Background(), nil, unaryInfo(), handler)

	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Zero(t, calls)
}

func TestUnaryAuthInterceptor_ExemptMethod(t *testing.T) {
	t.Parallel()

	interceptor := NewAuthenticator([]string{healthCheck}).UnaryInterceptor()

	resp, err := interceptor(context.Background(), nil,
		&grpc.UnaryServerInfo{FullMethod: healthCheck},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			assert.Empty(t, observability.UserIDFromContext(ctx))
			return "serving", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "serving", resp)
}

func TestUnaryAuthInterceptor_PropagatesIdentity(t *testing.T) {
	t.Parallel()

	interceptor := NewAuthenticator(nil).UnaryInterceptor()

	var userID string
	var call *observability.CallInfo
	_, err := interceptor(incoming(UserIDMetadataKey, "u-42"), nil, unaryInfo(),
		func(ctx context.Context, req interface{}) (interface{}, error) {
			userID = observability.UserIDFromContext(ctx)
			call = observability.CallInfoFromContext(ctx)
			return nil, nil
		})

	require.NoError(t, err)
	assert.Equal(t, "u-42", userID)
	require.NotNil(t, call)
	assert.Equal(t, "u-42", call.UserID)
}

func TestUnaryAuthInterceptor_InvalidToken(t *testing.T) {
	t.Parallel()

	interceptor := NewAuthenticator(nil, WithJWTSecret(testJWTSecret)).UnaryInterceptor()

	_, err := interceptor(incoming(AuthorizationMetadataKey, "Bearer not-a-jwt"), nil, unaryInfo(),
		func(ctx context.Context, req interface{}) (interface{}, error) {
			t.Fatal("handler must not run")
			return nil, nil
		})

	st := status.Convert(err)
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.Equal(t, "invalid credentials", st.Message())
}

func TestStreamAuthInterceptor(t *testing.T) {
	t.Parallel()

	interceptor := NewAuthenticator(nil).StreamInterceptor()

	err := interceptor(nil, newMockServerStream(context.Background()), streamInfo(),
		func(srv interface{}, stream grpc.ServerStream) error {
			t.Fatal("handler must not run")
			return nil
		})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	var userID string
	err = interceptor(nil, newMockServerStream(incoming(UserIDMetadataKey, "u-7")), streamInfo(),
		func(srv interface{}, stream grpc.ServerStream) error {
			userID = observability.UserIDFromContext(stream.Context())
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, "u-7", userID)
}

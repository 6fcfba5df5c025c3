package middleware

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/vyrodovalexey/grpckit/internal/observability"
)

func TestIncomingCorrelationID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		ctx       context.Context
		want      string
		generated bool
	}{
		{"preserved", incoming(CorrelationIDMetadataKey, "abc-123"), "abc-123", false},
		{"trimmed", incoming(CorrelationIDMetadataKey, "  abc  "), "abc", false},
		{"request id fallback", incoming(legacyRequestIDKey, "req-9"), "req-9", false},
		{"missing", context.Background(), "", true},
		{"empty", incoming(CorrelationIDMetadataKey, ""), "", true},
		{"too long", incoming(CorrelationIDMetadataKey, strings.Repeat("x", maxCorrelationIDLength+1)), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := incomingCorrelationID(tt.ctx)
			if tt.generated {
				_, err := uuid.Parse(got)
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnaryCorrelationInterceptor(t *testing.T) {
	t.Parallel()

	interceptor := UnaryCorrelationInterceptor()

	var fromCtx string
	var call *observability.CallInfo
	_, err := interceptor(incoming(CorrelationIDMetadataKey, "corr-1"), nil, unaryInfo(),
		func(ctx context.Context, req interface{}) (interface{}, error) {
			fromCtx = observability.CorrelationIDFromContext(ctx)
			call = observability.CallInfoFromContext(ctx)
			return nil, nil
		})

	require.NoError(t, err)
	assert.Equal(t, "corr-1", fromCtx)
	require.NotNil(t, call)
	assert.Equal(t, "corr-1", call.CorrelationID)
}

func TestUnaryCorrelationInterceptor_GeneratesUniqueIDs(t *testing.T) {
	t.Parallel()

	interceptor := UnaryCorrelationInterceptor()
	seen := make(map[string]struct{})

	for i := 0; i < 50; i++ {
		_, err := interceptor(context.Background(), nil, unaryInfo(),
			func(ctx context.Context, req interface{}) (interface{}, error) {
				seen[observability.CorrelationIDFromContext(ctx)] = struct{}{}
				return nil, nil
			})
		require.NoError(t, err)
	}

	assert.Len(t, seen, 50)
}

func TestStreamCorrelationInterceptor_EchoesID(t *testing.T) {
	t.Parallel()

	interceptor := StreamCorrelationInterceptor()
	stream := newMockServerStream(incoming(CorrelationIDMetadataKey, "corr-stream"))

	var fromCtx string
	err := interceptor(nil, stream, streamInfo(),
		func(srv interface{}, ss grpc.ServerStream) error {
			fromCtx = observability.CorrelationIDFromContext(ss.Context())
			return nil
		})

	require.NoError(t, err)
	assert.Equal(t, "corr-stream", fromCtx)
	assert.Equal(t, []string{"corr-stream"}, stream.header.Get(CorrelationIDMetadataKey))
	assert.Equal(t, []string{"corr-stream"}, stream.trailer.Get(CorrelationIDMetadataKey))
}

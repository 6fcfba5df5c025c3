package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewTracing_Disabled(t *testing.T) {
	t.Parallel()

	tr, err := NewTracing(context.Background(), TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, tr.Enabled())
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rate float64
		want string
	}{
		{1.0, sdktrace.AlwaysSample().Description()},
		{2.0, sdktrace.AlwaysSample().Description()},
		{0, sdktrace.NeverSample().Description()},
		{-1, sdktrace.NeverSample().Description()},
		{0.5, sdktrace.TraceIDRatioBased(0.5).Description()},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, sampler(tt.rate).Description())
	}
}

func TestNewTracing_WithoutExporter(t *testing.T) {
	t.Parallel()

	tr, err := NewTracing(context.Background(), TracingConfig{
		Enabled:      true,
		ServiceName:  "grpckit-test",
		SamplingRate: 1,
	})
	require.NoError(t, err)
	assert.True(t, tr.Enabled())
	assert.NoError(t, tr.Shutdown(context.Background()))
}

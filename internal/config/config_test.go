package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultMaxWorkers, cfg.MaxWorkers)
	assert.True(t, cfg.EnableAuth)
	assert.True(t, cfg.EnableRateLimiting)
	assert.True(t, cfg.EnableMetrics)
	assert.True(t, cfg.EnableErrorHandling)
	assert.False(t, cfg.EnableReflection)
	assert.Equal(t, 100, cfg.RateLimitMaxRequests)
	assert.Equal(t, 60, cfg.RateLimitWindowSeconds)
	assert.Equal(t, 1000, cfg.CacheL1MaxSize)
	assert.NoError(t, Validate(cfg))
}

func TestDefault_ExemptListIsCopied(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.AuthExemptMethods[0] = "/mutated"

	assert.Equal(t, "/grpc.health.v1.Health/Check", DefaultAuthExemptMethods[0])
}

func TestServerConfig_Durations(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.GracePeriodSeconds = 5
	cfg.RateLimitWindowSeconds = 10
	cfg.CacheL1TTLSeconds = 2
	cfg.CacheL2TTLSeconds = 20

	assert.Equal(t, 5*time.Second, cfg.GracePeriod())
	assert.Equal(t, 10*time.Second, cfg.RateLimitWindow())
	assert.Equal(t, 2*time.Second, cfg.CacheL1TTL())
	assert.Equal(t, 20*time.Second, cfg.CacheL2TTL())
}

func TestServerConfig_Address(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 6000

	assert.Equal(t, "127.0.0.1:6000", cfg.Address())
}

func TestServerConfig_IsAuthExempt(t *testing.T) {
	t.Parallel()

	cfg := Default()

	assert.True(t, cfg.IsAuthExempt("/grpc.health.v1.Health/Check"))
	assert.False(t, cfg.IsAuthExempt("/demo.v1.Demo/Get"))
}

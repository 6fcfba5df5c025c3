package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr string
	}{
		{name: "defaults", mutate: func(*ServerConfig) {}},
		{name: "ephemeral port", mutate: func(c *ServerConfig) { c.Port = 0 }},
		{name: "port too large", mutate: func(c *ServerConfig) { c.Port = 70000 }, wantErr: "Port"},
		{name: "zero workers", mutate: func(c *ServerConfig) { c.MaxWorkers = 0 }, wantErr: "MaxWorkers"},
		{name: "zero max requests", mutate: func(c *ServerConfig) { c.RateLimitMaxRequests = 0 }, wantErr: "RateLimitMaxRequests"},
		{name: "zero window", mutate: func(c *ServerConfig) { c.RateLimitWindowSeconds = 0 }, wantErr: "RateLimitWindowSeconds"},
		{name: "zero l1 size", mutate: func(c *ServerConfig) { c.CacheL1MaxSize = 0 }, wantErr: "CacheL1MaxSize"},
		{name: "bad log level", mutate: func(c *ServerConfig) { c.LogLevel = "trace" }, wantErr: "LogLevel"},
		{name: "sampling rate above one", mutate: func(c *ServerConfig) { c.TracingSamplingRate = 1.5 }, wantErr: "TracingSamplingRate"},
		{name: "redis url required", mutate: func(c *ServerConfig) { c.RedisURL = "" }, wantErr: "RedisURL"},
		{
			name:   "redis url optional when disabled",
			mutate: func(c *ServerConfig) { c.RedisEnabled = false; c.RedisURL = "" },
		},
		{
			name:    "empty rate limit prefix",
			mutate:  func(c *ServerConfig) { c.RateLimitKeyPrefix = "" },
			wantErr: "rate_limit_key_prefix",
		},
		{
			name:    "empty cache prefix",
			mutate:  func(c *ServerConfig) { c.CacheKeyPrefix = "" },
			wantErr: "cache_key_prefix",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(&cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

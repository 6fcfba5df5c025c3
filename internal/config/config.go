// Package config provides configuration types and loading for the gRPC runtime.
package config

import (
	"net"
	"strconv"
	"time"
)

// Default configuration values.
const (
	DefaultHost                   = "0.0.0.0"
	DefaultPort                   = 50051
	DefaultMaxWorkers             = 10
	DefaultGracePeriodSeconds     = 30
	DefaultRateLimitMaxRequests   = 100
	DefaultRateLimitWindowSeconds = 60
	DefaultCacheL1TTLSeconds      = 60
	DefaultCacheL1MaxSize         = 1000
	DefaultCacheL2TTLSeconds      = 300
	DefaultCacheKeyPrefix         = "grpc:cache:"
	DefaultRateLimitKeyPrefix     = "grpc:ratelimit:"
	DefaultRedisURL               = "redis://localhost:6379/0"
	DefaultMetricsPort            = 9090
	DefaultServiceName            = "grpckit"
)

// DefaultAuthExemptMethods are the methods reachable without caller identity.
var DefaultAuthExemptMethods = []string{
	"/grpc.health.v1.Health/Check",
	"/grpc.health.v1.Health/Watch",
	"/grpc.reflection.v1.ServerReflection/ServerReflectionInfo",
	"/grpc.reflection.v1alpha.ServerReflection/ServerReflectionInfo",
}

// ServerConfig is the complete runtime configuration of one gRPC server.
// It is constructed once at process start and never mutated afterwards.
type ServerConfig struct {
	Host               string `mapstructure:"server_host" validate:"required"`
	Port               int    `mapstructure:"server_port" validate:"gte=0,lte=65535"`
	MaxWorkers         int    `mapstructure:"server_max_workers" validate:"gt=0"`
	GracePeriodSeconds int    `mapstructure:"server_grace_period_seconds" validate:"gte=0"`

	EnableReflection       bool     `mapstructure:"server_enable_reflection"`
	ReflectionServiceNames []string `mapstructure:"server_reflection_services"`

	AuthExemptMethods []string `mapstructure:"auth_exempt_methods"`
	AuthJWTSecret     string   `mapstructure:"auth_jwt_secret"`

	EnableAuth          bool `mapstructure:"enable_auth"`
	EnableRateLimiting  bool `mapstructure:"enable_rate_limiting"`
	EnableMetrics       bool `mapstructure:"enable_metrics"`
	EnableErrorHandling bool `mapstructure:"enable_error_handling"`
	EnableCache         bool `mapstructure:"enable_cache"`

	RateLimitMaxRequests   int    `mapstructure:"rate_limit_max_requests" validate:"gt=0"`
	RateLimitWindowSeconds int    `mapstructure:"rate_limit_window_seconds" validate:"gt=0"`
	RateLimitKeyPrefix     string `mapstructure:"rate_limit_key_prefix"`

	CacheL1TTLSeconds int    `mapstructure:"cache_l1_ttl_seconds" validate:"gt=0"`
	CacheL1MaxSize    int    `mapstructure:"cache_l1_max_size" validate:"gt=0"`
	CacheL2TTLSeconds int    `mapstructure:"cache_l2_ttl_seconds" validate:"gt=0"`
	CacheKeyPrefix    string `mapstructure:"cache_key_prefix"`

	RedisEnabled bool   `mapstructure:"redis_enabled"`
	RedisURL     string `mapstructure:"redis_url" validate:"required_if=RedisEnabled true"`

	MetricsPort int    `mapstructure:"metrics_port" validate:"gte=0,lte=65535"`
	LogLevel    string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat   string `mapstructure:"log_format" validate:"oneof=json console"`

	ServiceName         string  `mapstructure:"service_name" validate:"required"`
	TracingEnabled      bool    `mapstructure:"tracing_enabled"`
	TracingOTLPEndpoint string  `mapstructure:"tracing_otlp_endpoint"`
	TracingSamplingRate float64 `mapstructure:"tracing_sampling_rate" validate:"gte=0,lte=1"`
}

// Default returns a ServerConfig populated with default values.
func Default() ServerConfig {
	exempt := make([]string, len(DefaultAuthExemptMethods))
	copy(exempt, DefaultAuthExemptMethods)

	return ServerConfig{
		Host:                   DefaultHost,
		Port:                   DefaultPort,
		MaxWorkers:             DefaultMaxWorkers,
		GracePeriodSeconds:     DefaultGracePeriodSeconds,
		AuthExemptMethods:      exempt,
		EnableAuth:             true,
		EnableRateLimiting:     true,
		EnableMetrics:          true,
		EnableErrorHandling:    true,
		EnableCache:            true,
		RateLimitMaxRequests:   DefaultRateLimitMaxRequests,
		RateLimitWindowSeconds: DefaultRateLimitWindowSeconds,
		RateLimitKeyPrefix:     DefaultRateLimitKeyPrefix,
		CacheL1TTLSeconds:      DefaultCacheL1TTLSeconds,
		CacheL1MaxSize:         DefaultCacheL1MaxSize,
		CacheL2TTLSeconds:      DefaultCacheL2TTLSeconds,
		CacheKeyPrefix:         DefaultCacheKeyPrefix,
		RedisEnabled:           true,
		RedisURL:               DefaultRedisURL,
		MetricsPort:            DefaultMetricsPort,
		LogLevel:               "info",
		LogFormat:              "json",
		ServiceName:            DefaultServiceName,
		TracingSamplingRate:    1.0,
	}
}

// Address returns the host:port the server listens on.
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// GracePeriod returns the graceful drain bound.
func (c ServerConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// RateLimitWindow returns the rate limit window length.
func (c ServerConfig) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// CacheL1TTL returns the in-process cache TTL cap.
func (c ServerConfig) CacheL1TTL() time.Duration {
	return time.Duration(c.CacheL1TTLSeconds) * time.Second
}

// CacheL2TTL returns the default shared cache TTL.
func (c ServerConfig) CacheL2TTL() time.Duration {
	return time.Duration(c.CacheL2TTLSeconds) * time.Second
}

// IsAuthExempt reports whether method may be called without identity.
func (c ServerConfig) IsAuthExempt(method string) bool {
	for _, m := range c.AuthExemptMethods {
		if m == method {
			return true
		}
	}
	return false
}

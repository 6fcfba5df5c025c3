package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix shared by every environment variable.
const EnvPrefix = "GRPC"

// Load resolves the configuration.
//
// Precedence (highest to lowest):
//  1. Environment variables (GRPC_*), e.g. GRPC_SERVER_PORT, GRPC_ENABLE_AUTH
//  2. The YAML file at path, when path is not empty
//  3. Default values
//
// List values given through the environment are comma separated.
func Load(path string) (ServerConfig, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return ServerConfig{}, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.AuthExemptMethods = normalizeList(cfg.AuthExemptMethods)
	cfg.ReflectionServiceNames = normalizeList(cfg.ReflectionServiceNames)

	if err := Validate(cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// setDefaults registers every key with viper so AutomaticEnv can see it.
func setDefaults(v *viper.Viper, d ServerConfig) {
	v.SetDefault("server_host", d.Host)
	v.SetDefault("server_port", d.Port)
	v.SetDefault("server_max_workers", d.MaxWorkers)
	v.SetDefault("server_grace_period_seconds", d.GracePeriodSeconds)
	v.SetDefault("server_enable_reflection", d.EnableReflection)
	v.SetDefault("server_reflection_services", d.ReflectionServiceNames)
	v.SetDefault("auth_exempt_methods", d.AuthExemptMethods)
	v.SetDefault("auth_jwt_secret", d.AuthJWTSecret)
	v.SetDefault("enable_auth", d.EnableAuth)
	v.SetDefault("enable_rate_limiting", d.EnableRateLimiting)
	v.SetDefault("enable_metrics", d.EnableMetrics)
	v.SetDefault("enable_error_handling", d.EnableErrorHandling)
	v.SetDefault("enable_cache", d.EnableCache)
	v.SetDefault("rate_limit_max_requests", d.RateLimitMaxRequests)
	v.SetDefault("rate_limit_window_seconds", d.RateLimitWindowSeconds)
	v.SetDefault("rate_limit_key_prefix", d.RateLimitKeyPrefix)
	v.SetDefault("cache_l1_ttl_seconds", d.CacheL1TTLSeconds)
	v.SetDefault("cache_l1_max_size", d.CacheL1MaxSize)
	v.SetDefault("cache_l2_ttl_seconds", d.CacheL2TTLSeconds)
	v.SetDefault("cache_key_prefix", d.CacheKeyPrefix)
	v.SetDefault("redis_enabled", d.RedisEnabled)
	v.SetDefault("redis_url", d.RedisURL)
	v.SetDefault("metrics_port", d.MetricsPort)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("service_name", d.ServiceName)
	v.SetDefault("tracing_enabled", d.TracingEnabled)
	v.SetDefault("tracing_otlp_endpoint", d.TracingOTLPEndpoint)
	v.SetDefault("tracing_sampling_rate", d.TracingSamplingRate)
}

// normalizeList trims entries and drops empty ones.
func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

package server

import (
	"context"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/vyrodovalexey/grpckit/internal/cache"
	"github.com/vyrodovalexey/grpckit/internal/observability"
	"github.com/vyrodovalexey/grpckit/internal/ratelimit"
	"github.com/vyrodovalexey/grpckit/internal/store"
)

// Option is a functional option for configuring the gRPC server.
type Option func(*Server)

// WithLogger sets the logger for the server.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHooks sets the lifecycle hooks.
func WithHooks(hooks Hooks) Option {
	return func(s *Server) {
		s.hooks = hooks
	}
}

// WithStore sets the shared store backing the L2 cache tier and the rate
// limiter. Without it the cache is L1 only and rate limits are per process.
func WithStore(st store.Store) Option {
	return func(s *Server) {
		s.store = st
	}
}

// WithCache replaces the cache built from configuration.
func WithCache(c *cache.Tiered) Option {
	return func(s *Server) {
		s.cache = c
	}
}

// WithLimiter replaces the rate limiter built from configuration.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// WithRegistry sets the Prometheus registry metrics are registered with.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithListener makes the server serve on ln instead of binding the
// configured address.
func WithListener(ln net.Listener) Option {
	return func(s *Server) {
		s.listener = ln
	}
}

// WithRateLimitKeyFunc overrides how calls are keyed for rate limiting.
func WithRateLimitKeyFunc(fn func(ctx context.Context) string) Option {
	return func(s *Server) {
		s.rateLimitKey = fn
	}
}

// WithKeepaliveParams sets the keepalive parameters for the server.
func WithKeepaliveParams(kp keepalive.ServerParameters) Option {
	return func(s *Server) {
		s.keepaliveParams = &kp
	}
}

// WithUnaryInterceptors appends unary interceptors after the built-in chain.
func WithUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) Option {
	return func(s *Server) {
		s.extraUnary = append(s.extraUnary, interceptors...)
	}
}

// WithStreamInterceptors appends stream interceptors after the built-in chain.
func WithStreamInterceptors(interceptors ...grpc.StreamServerInterceptor) Option {
	return func(s *Server) {
		s.extraStream = append(s.extraStream, interceptors...)
	}
}

// WithServerOptions passes raw options to grpc.NewServer.
func WithServerOptions(opts ...grpc.ServerOption) Option {
	return func(s *Server) {
		s.serverOpts = append(s.serverOpts, opts...)
	}
}

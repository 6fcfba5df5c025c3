package server

import (
	"google.golang.org/grpc"

	"github.com/vyrodovalexey/grpckit/internal/grpc/middleware"
)

// interceptors returns the chain in its fixed order, outermost first,
// leaving out disabled stages.
func (s *Server) interceptors() ([]grpc.UnaryServerInterceptor, []grpc.StreamServerInterceptor) {
	var (
		unary  []grpc.UnaryServerInterceptor
		stream []grpc.StreamServerInterceptor
	)

	if s.cfg.EnableMetrics && s.metrics != nil {
		unary = append(unary, middleware.UnaryMetricsInterceptor(s.metrics))
		stream = append(stream, middleware.StreamMetricsInterceptor(s.metrics))
	}

	if s.cfg.EnableAuth {
		auth := middleware.NewAuthenticator(s.cfg.AuthExemptMethods,
			middleware.WithJWTSecret(s.cfg.AuthJWTSecret),
			middleware.WithAuthLogger(s.logger),
		)
		unary = append(unary, auth.UnaryInterceptor())
		stream = append(stream, auth.StreamInterceptor())
	}

	if s.cfg.EnableRateLimiting && s.limiter != nil {
		opts := []middleware.RateLimitOption{
			middleware.WithRateLimitExempt(s.cfg.AuthExemptMethods...),
			middleware.WithRateLimitLogger(s.logger),
		}
		if s.rateLimitKey != nil {
			opts = append(opts, middleware.WithKeyFunc(s.rateLimitKey))
		}
		unary = append(unary, middleware.UnaryRateLimitInterceptor(s.limiter, opts...))
		stream = append(stream, middleware.StreamRateLimitInterceptor(s.limiter, opts...))
	}

	unary = append(unary,
		middleware.UnaryCorrelationInterceptor(),
		middleware.UnaryLoggingInterceptor(s.logger),
	)
	stream = append(stream,
		middleware.StreamCorrelationInterceptor(),
		middleware.StreamLoggingInterceptor(s.logger),
	)

	if s.cfg.EnableErrorHandling {
		unary = append(unary, middleware.UnaryErrorInterceptor(s.logger))
		stream = append(stream, middleware.StreamErrorInterceptor(s.logger))
	}

	return append(unary, s.extraUnary...), append(stream, s.extraStream...)
}

// buildServerOptions builds gRPC server options.
func (s *Server) buildServerOptions() []grpc.ServerOption {
	unary, stream := s.interceptors()
	workers := uint32(s.cfg.MaxWorkers)

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(unary...),
		grpc.ChainStreamInterceptor(stream...),
		grpc.MaxConcurrentStreams(workers),
		grpc.NumStreamWorkers(workers),
	}
	if s.keepaliveParams != nil {
		opts = append(opts, grpc.KeepaliveParams(*s.keepaliveParams))
	}
	return append(opts, s.serverOpts...)
}

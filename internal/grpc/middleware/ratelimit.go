package middleware

import (
	"context"
	"math"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/vyrodovalexey/grpckit/internal/observability"
	"github.com/vyrodovalexey/grpckit/internal/ratelimit"
)

// RetryAfterMetadataKey is the trailer carrying the seconds until the
// current rate limit window ends.
const RetryAfterMetadataKey = "retry-after"

// anonymousKey is the rate limit key of callers without any identity.
const anonymousKey = "anonymous"

// KeyFunc derives the rate limit key of a call.
type KeyFunc func(ctx context.Context) string

// DefaultKeyFunc keys calls by authenticated user, then by the user-id
// metadata entry, then by peer address.
func DefaultKeyFunc(ctx context.Context) string {
	if id := observability.UserIDFromContext(ctx); id != "" {
		return id
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(UserIDMetadataKey); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return "peer:" + p.Addr.String()
	}
	return anonymousKey
}

type rateLimitConfig struct {
	keyFunc KeyFunc
	exempt  map[string]struct{}
	logger  observability.Logger
}

// RateLimitOption is a functional option for the rate limit interceptors.
type RateLimitOption func(*rateLimitConfig)

// WithKeyFunc overrides how calls are keyed.
func WithKeyFunc(fn KeyFunc) RateLimitOption {
	return func(c *rateLimitConfig) {
		if fn != nil {
			c.keyFunc = fn
		}
	}
}

// WithRateLimitExempt lets methods through without consuming quota.
func WithRateLimitExempt(methods ...string) RateLimitOption {
	return func(c *rateLimitConfig) {
		for _, m := range methods {
			c.exempt[m] = struct{}{}
		}
	}
}

// WithRateLimitLogger sets the logger.
func WithRateLimitLogger(logger observability.Logger) RateLimitOption {
	return func(c *rateLimitConfig) {
		c.logger = logger
	}
}

func newRateLimitConfig(opts []RateLimitOption) *rateLimitConfig {
	c := &rateLimitConfig{
		keyFunc: DefaultKeyFunc,
		exempt:  make(map[string]struct{}),
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// check consumes one unit of quota. A nil trailer means the call may proceed.
// Store failures let the call through.
func (c *rateLimitConfig) check(ctx context.Context, limiter ratelimit.Limiter, method string) (metadata.MD, error) {
	if _, ok := c.exempt[method]; ok {
		return nil, nil
	}

	key := c.keyFunc(ctx)
	res, err := limiter.Allow(ctx, key)
	if err != nil {
		c.logger.WithContext(ctx).Warn("rate limit check failed, allowing call",
			observability.String("method", method),
			observability.Error(err),
		)
		return nil, nil
	}
	if res.Allowed {
		return nil, nil
	}

	c.logger.WithContext(ctx).Info("rate limit exceeded",
		observability.String("method", method),
		observability.String("key", key),
		observability.Int("limit", res.Limit),
	)

	trailer := metadata.Pairs(RetryAfterMetadataKey, retryAfterSeconds(res.ResetAfter))
	return trailer, status.Errorf(codes.ResourceExhausted,
		"rate limit exceeded: %d requests per window", res.Limit)
}

func retryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

// UnaryRateLimitInterceptor returns a unary server interceptor that rejects
// calls over quota with RESOURCE_EXHAUSTED and a retry-after trailer.
func UnaryRateLimitInterceptor(limiter ratelimit.Limiter, opts ...RateLimitOption) grpc.UnaryServerInterceptor {
	cfg := newRateLimitConfig(opts)

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		trailer, err := cfg.check(ctx, limiter, info.FullMethod)
		if err != nil {
			_ = grpc.SetTrailer(ctx, trailer)
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamRateLimitInterceptor returns a stream server interceptor that
// consumes one unit of quota when the stream opens.
func StreamRateLimitInterceptor(limiter ratelimit.Limiter, opts ...RateLimitOption) grpc.StreamServerInterceptor {
	cfg := newRateLimitConfig(opts)

	return func(
		srv interface{},
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		trailer, err := cfg.check(stream.Context(), limiter, info.FullMethod)
		if err != nil {
			stream.SetTrailer(trailer)
			return err
		}
		return handler(srv, stream)
	}
}

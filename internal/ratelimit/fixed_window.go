package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vyrodovalexey/grpckit/internal/observability"
	"github.com/vyrodovalexey/grpckit/internal/store"
)

// Config configures a FixedWindow limiter.
type Config struct {
	// Limit is the maximum number of calls per caller per window.
	Limit int

	// Window is the window length.
	Window time.Duration

	// KeyPrefix namespaces counters in the shared store.
	KeyPrefix string
}

// Option configures a FixedWindow limiter.
type Option func(*FixedWindow)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *FixedWindow) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(l *FixedWindow) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// FixedWindow is a Limiter backed by a store.Store.
type FixedWindow struct {
	store   store.Store
	limit   int
	window  time.Duration
	prefix  string
	now     func() time.Time
	logger  observability.Logger
	metrics *Metrics
}

// NewFixedWindow creates a fixed-window limiter.
func NewFixedWindow(s store.Store, cfg Config, opts ...Option) (*FixedWindow, error) {
	if s == nil {
		return nil, errors.New("ratelimit: store is required")
	}
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("ratelimit: limit must be positive, got %d", cfg.Limit)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("ratelimit: window must be positive, got %s", cfg.Window)
	}

	l := &FixedWindow{
		store:   s,
		limit:   cfg.Limit,
		window:  cfg.Window,
		prefix:  cfg.KeyPrefix,
		now:     time.Now,
		logger:  observability.NopLogger(),
		metrics: GetMetrics(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// windowIndex returns floor(t / window).
func (l *FixedWindow) windowIndex(t time.Time) int64 {
	return t.UnixNano() / l.window.Nanoseconds()
}

// windowKey returns the counter key for key in the window containing t.
func (l *FixedWindow) windowKey(key string, t time.Time) string {
	return l.prefix + key + ":" + strconv.FormatInt(l.windowIndex(t), 10)
}

// Allow implements Limiter. The increment happens before the comparison,
// so concurrent calls from one caller can never jointly exceed the limit
// within a window.
func (l *FixedWindow) Allow(ctx context.Context, key string) (Result, error) {
	now := l.now()
	windowEnd := time.Unix(0, (l.windowIndex(now)+1)*l.window.Nanoseconds())

	res := Result{
		Limit:      l.limit,
		ResetAfter: windowEnd.Sub(now),
	}

	count, err := l.store.IncrementWithExpiry(ctx, l.windowKey(key, now), 1, l.window)
	if err != nil {
		l.metrics.decisions.WithLabelValues("error").Inc()
		return res, fmt.Errorf("rate limit counter: %w", err)
	}

	res.Count = count
	res.Allowed = count <= int64(l.limit)
	if remaining := int64(l.limit) - count; remaining > 0 {
		res.Remaining = int(remaining)
	}

	if res.Allowed {
		l.metrics.decisions.WithLabelValues("allowed").Inc()
	} else {
		l.metrics.decisions.WithLabelValues("rejected").Inc()
		l.logger.Debug("rate limit exceeded",
			observability.String("key", key),
			observability.Int64("count", count),
			observability.Int("limit", l.limit))
	}

	return res, nil
}

// Reset clears the counter of the current window for key.
func (l *FixedWindow) Reset(ctx context.Context, key string) error {
	return l.store.Delete(ctx, l.windowKey(key, l.now()))
}

// Limit returns the configured per-window limit.
func (l *FixedWindow) Limit() int { return l.limit }

// Window returns the configured window length.
func (l *FixedWindow) Window() time.Duration { return l.window }

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/grpckit/internal/observability"
	"github.com/vyrodovalexey/grpckit/internal/store"
)

const tracerName = "grpckit/cache"

// Config configures a Tiered cache.
type Config struct {
	// L1TTL caps the lifetime of in-process entries.
	L1TTL time.Duration
	// L1MaxSize bounds the number of in-process entries.
	L1MaxSize int
	// L2TTL is the shared-tier lifetime used when SetWithL1 gets ttl <= 0.
	L2TTL time.Duration
	// KeyPrefix is prepended to every key and pattern.
	KeyPrefix string
	// Breaker configures the circuit breaker in front of L2.
	Breaker BreakerSettings
}

// Option configures a Tiered cache.
type Option func(*Tiered)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(t *Tiered) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithClock overrides the time source of the L1 tier.
func WithClock(now func() time.Time) Option {
	return func(t *Tiered) { t.now = now }
}

// Tiered is the two-tier cache. It is safe for concurrent use.
type Tiered struct {
	l1     *memoryCache
	l2     *remoteCache
	l1TTL  time.Duration
	l2TTL  time.Duration
	prefix string
	now    func() time.Time
	logger observability.Logger
}

// NewTiered creates a two-tier cache over s. A nil store yields an
// L1-only cache.
func NewTiered(s store.Store, cfg Config, opts ...Option) (*Tiered, error) {
	if cfg.L1MaxSize <= 0 {
		return nil, fmt.Errorf("cache: L1 max size must be positive, got %d", cfg.L1MaxSize)
	}
	if cfg.L1TTL <= 0 || cfg.L2TTL <= 0 {
		return nil, errors.New("cache: TTLs must be positive")
	}

	t := &Tiered{
		l1TTL:  cfg.L1TTL,
		l2TTL:  cfg.L2TTL,
		prefix: cfg.KeyPrefix,
		now:    time.Now,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}

	t.l1 = newMemoryCache(cfg.L1MaxSize, t.now)
	if s != nil {
		t.l2 = newRemoteCache(s, cfg.Breaker, t.logger)
	}
	return t, nil
}

func (t *Tiered) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...))
}

// GetWithL1 returns the value cached at key. L1 hits return without
// touching L2; L2 hits are copied into L1 for no longer than they have
// left in L2, capped at L1TTL. ErrCacheMiss means the caller
// must compute the value. L2 failures are logged and reported as misses.
// The returned slice is shared with L1 and must not be modified.
func (t *Tiered) GetWithL1(ctx context.Context, key string) ([]byte, error) {
	ctx, span := t.startSpan(ctx, "cache.GetWithL1", attribute.String("cache.key", key))
	defer span.End()

	full := t.prefix + key

	if val, err := t.l1.Get(ctx, full); err == nil {
		span.SetAttributes(attribute.String("cache.hit", tierL1))
		return val, nil
	}

	if t.l2 == nil {
		span.SetAttributes(attribute.String("cache.hit", "none"))
		return nil, ErrCacheMiss
	}

	val, remaining, err := t.l2.GetWithTTL(ctx, full)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			span.RecordError(err)
			t.logger.WithContext(ctx).Warn("cache L2 read failed",
				observability.String("key", key),
				observability.Error(err))
		}
		span.SetAttributes(attribute.String("cache.hit", "none"))
		return nil, ErrCacheMiss
	}

	l1TTL := t.l1TTL
	if remaining > 0 {
		l1TTL = min(remaining, l1TTL)
	}
	_ = t.l1.Set(ctx, full, val, l1TTL)
	span.SetAttributes(attribute.String("cache.hit", tierL2))
	return val, nil
}

// SetWithL1 stores value in both tiers concurrently. L2 keeps it for ttl
// (L2TTL when ttl <= 0); L1 keeps it for at most L1TTL. Failures of either
// tier are logged independently and never returned.
func (t *Tiered) SetWithL1(ctx context.Context, key string, value []byte, ttl time.Duration) {
	ctx, span := t.startSpan(ctx, "cache.SetWithL1",
		attribute.String("cache.key", key),
		attribute.Int("cache.value_size", len(value)))
	defer span.End()

	if ttl <= 0 {
		ttl = t.l2TTL
	}
	l1TTL := min(ttl, t.l1TTL)
	full := t.prefix + key
	logger := t.logger.WithContext(ctx)

	var g errgroup.Group
	g.Go(func() error {
		if err := t.l1.Set(ctx, full, value, l1TTL); err != nil {
			t.l1.metrics.errorsTotal.WithLabelValues(tierL1, "set").Inc()
			logger.Warn("cache L1 write failed", observability.String("key", key), observability.Error(err))
		}
		return nil
	})
	if t.l2 != nil {
		g.Go(func() error {
			if err := t.l2.Set(ctx, full, value, ttl); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "l2 write failed")
				logger.Warn("cache L2 write failed", observability.String("key", key), observability.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Delete removes key from both tiers.
func (t *Tiered) Delete(ctx context.Context, key string) error {
	full := t.prefix + key
	_ = t.l1.Delete(ctx, full)
	if t.l2 == nil {
		return nil
	}
	if err := t.l2.Delete(ctx, full); err != nil {
		return fmt.Errorf("cache L2 delete %q: %w", key, err)
	}
	return nil
}

// InvalidatePattern removes every key matching pattern from both tiers
// and returns the number of keys removed from L2 (from L1 when there is
// no L2). L1 is always cleared; an L2
// failure is returned so write paths can decide whether to surface it.
func (t *Tiered) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	ctx, span := t.startSpan(ctx, "cache.InvalidatePattern", attribute.String("cache.pattern", pattern))
	defer span.End()

	full := t.prefix + pattern
	l1Removed, _ := t.l1.DeletePattern(ctx, full)
	span.SetAttributes(attribute.Int("cache.l1_removed", l1Removed))

	if t.l2 == nil {
		return l1Removed, nil
	}

	removed, err := t.l2.DeletePattern(ctx, full)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "l2 invalidation failed")
		t.logger.WithContext(ctx).Error("cache L2 invalidation failed",
			observability.String("pattern", pattern),
			observability.Error(err))
		return removed, fmt.Errorf("cache invalidate %q: %w", pattern, err)
	}

	span.SetAttributes(attribute.Int("cache.l2_removed", removed))
	t.logger.WithContext(ctx).Debug("cache invalidated",
		observability.String("pattern", pattern),
		observability.Int("l1_removed", l1Removed),
		observability.Int("l2_removed", removed))
	return removed, nil
}

// L1Stats returns the in-process tier counters.
func (t *Tiered) L1Stats() Stats { return t.l1.stats() }

// L2Stats returns the shared tier counters.
func (t *Tiered) L2Stats() Stats {
	if t.l2 == nil {
		return Stats{}
	}
	return t.l2.stats()
}

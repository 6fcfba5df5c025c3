package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/grpckit/internal/observability"
	"github.com/vyrodovalexey/grpckit/internal/store"
)

// BreakerSettings configures the circuit breaker in front of L2.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings returns the L2 breaker defaults.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 10 * time.Second}
}

// remoteCache is the L2 tier over the shared store. Reads and writes go
// through a circuit breaker that opens after consecutive store failures.
type remoteCache struct {
	store   store.Store
	breaker *gobreaker.CircuitBreaker
	metrics *Metrics

	hits   atomic.Int64
	misses atomic.Int64
}

func newRemoteCache(s store.Store, settings BreakerSettings, logger observability.Logger) *remoteCache {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = DefaultBreakerSettings().ConsecutiveFailures
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cache-l2",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, store.ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("cache circuit breaker state changed",
				observability.String("breaker", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()))
		},
	})

	return &remoteCache{store: s, breaker: breaker, metrics: GetMetrics()}
}

// remoteEntry is a value read from L2 with its remaining lifetime. A zero
// ttl means the store did not report one.
type remoteEntry struct {
	value []byte
	ttl   time.Duration
}

// Get implements Tier.
func (c *remoteCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, _, err := c.GetWithTTL(ctx, key)
	return val, err
}

// GetWithTTL returns the value at key and, when the store can report it,
// how long the value has left in L2.
func (c *remoteCache) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		if r, ok := c.store.(store.TTLReader); ok {
			val, ttl, err := r.GetWithTTL(ctx, key)
			return remoteEntry{value: val, ttl: ttl}, err
		}
		val, err := c.store.Get(ctx, key)
		return remoteEntry{value: val}, err
	})
	if errors.Is(err, store.ErrNotFound) {
		c.misses.Add(1)
		c.metrics.missesTotal.WithLabelValues(tierL2).Inc()
		return nil, 0, ErrCacheMiss
	}
	if err != nil {
		c.metrics.errorsTotal.WithLabelValues(tierL2, "get").Inc()
		return nil, 0, err
	}

	c.hits.Add(1)
	c.metrics.hitsTotal.WithLabelValues(tierL2).Inc()
	entry := out.(remoteEntry)
	return entry.value, entry.ttl, nil
}

// Set implements Tier.
func (c *remoteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.store.Set(ctx, key, value, ttl)
	})
	if err != nil {
		c.metrics.errorsTotal.WithLabelValues(tierL2, "set").Inc()
	}
	return err
}

// Delete implements Tier.
func (c *remoteCache) Delete(ctx context.Context, key string) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.store.Delete(ctx, key)
	})
	if err != nil {
		c.metrics.errorsTotal.WithLabelValues(tierL2, "delete").Inc()
	}
	return err
}

// DeletePattern implements Tier. Invalidation is always attempted, even
// while the breaker is open.
func (c *remoteCache) DeletePattern(ctx context.Context, pattern string) (int, error) {
	n, err := c.store.DeletePattern(ctx, pattern)
	if err != nil {
		c.metrics.errorsTotal.WithLabelValues(tierL2, "delete_pattern").Inc()
	}
	return n, err
}

func (c *remoteCache) stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

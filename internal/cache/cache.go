package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned when a key is not present in any tier.
var ErrCacheMiss = errors.New("cache miss")

// Tier is one level of the cache.
type Tier interface {
	// Get returns the value at key or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// DeletePattern removes every key matching pattern ('*' wildcard).
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

// Stats is a snapshot of one tier's counters.
type Stats struct {
	Hits   int64
	Misses int64
	Size   int
}

// HitRate returns hits as a percentage of lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

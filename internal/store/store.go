// Package store provides the shared key-value store used by the L2 cache
// tier and the rate limiter. RedisStore is the production backend and is
// shared by every server instance; MemoryStore serves single-process
// deployments and tests.
//
// Patterns accepted by DeletePattern use '*' as the only wildcard and it
// matches any run of characters, including separators. Every other
// character is literal; RedisStore escapes the characters Redis would
// otherwise treat as glob syntax ('?', '[', ']' and '\').
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("store: key not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// Store is a key-value store with TTL support.
type Store interface {
	// Get returns the value stored at key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value at key. A ttl <= 0 keeps the value until deleted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePattern removes every key matching pattern and returns the count.
	DeletePattern(ctx context.Context, pattern string) (int, error)

	// IncrementWithExpiry atomically adds delta to the counter at key and
	// returns the new value. The expiry is set only when the increment
	// creates the key, so the counter dies with its window.
	IncrementWithExpiry(ctx context.Context, key string, delta int64, expiry time.Duration) (int64, error)

	// Close releases resources held by the store.
	Close() error
}

// TTLReader is implemented by stores that can report how long a value has
// left to live.
type TTLReader interface {
	// GetWithTTL returns the value at key and its remaining lifetime. A
	// zero duration means the value does not expire.
	GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, error)
}

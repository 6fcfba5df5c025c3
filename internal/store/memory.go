package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ryanuber/go-glob"
)

const backendMemory = "memory"

// DefaultCleanupInterval is how often a MemoryStore sweeps expired entries.
const DefaultCleanupInterval = time.Minute

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process Store. It is not shared between processes.
// Expired entries are dropped on access and by a periodic sweep, so keys
// that are never read again (such as past rate-limit windows) do not
// accumulate. Close stops the sweep.
type MemoryStore struct {
	now             func() time.Time
	metrics         *Metrics
	cleanupInterval time.Duration
	done            chan struct{}

	mu      sync.Mutex
	entries map[string]memoryEntry
	closed  bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithCleanupInterval sets how often expired entries are swept. A
// non-positive interval disables the background sweep.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.cleanupInterval = d }
}

// NewMemoryStore creates an empty MemoryStore and starts its sweep.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		now:             time.Now,
		metrics:         GetMetrics(),
		cleanupInterval: DefaultCleanupInterval,
		done:            make(chan struct{}),
		entries:         make(map[string]memoryEntry),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.cleanupInterval > 0 {
		go s.startCleanup(s.cleanupInterval)
	}
	return s
}

// startCleanup sweeps expired entries until the store is closed.
func (s *MemoryStore) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.done:
			return
		}
	}
}

// cleanupExpired removes every expired entry and returns how many.
func (s *MemoryStore) cleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// lookup returns the live entry at key, dropping it if expired.
// Must be called with the lock held.
func (s *MemoryStore) lookup(key string, now time.Time) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if e.expired(now) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryStore) expiry(ttl time.Duration, now time.Time) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (val []byte, err error) {
	start := time.Now()
	defer func() { s.metrics.observe(backendMemory, "get", start, err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	e, ok := s.lookup(key, s.now())
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// GetWithTTL implements TTLReader.
func (s *MemoryStore) GetWithTTL(ctx context.Context, key string) (val []byte, ttl time.Duration, err error) {
	start := time.Now()
	defer func() { s.metrics.observe(backendMemory, "get_ttl", start, err) }()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, 0, ErrClosed
	}
	now := s.now()
	e, ok := s.lookup(key, now)
	if !ok {
		return nil, 0, ErrNotFound
	}
	if !e.expiresAt.IsZero() {
		ttl = e.expiresAt.Sub(now)
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, ttl, nil
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (err error) {
	start := time.Now()
	defer func() { s.metrics.observe(backendMemory, "set", start, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.entries[key] = memoryEntry{value: stored, expiresAt: s.expiry(ttl, s.now())}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { s.metrics.observe(backendMemory, "delete", start, err) }()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	delete(s.entries, key)
	return nil
}

// DeletePattern implements Store.
func (s *MemoryStore) DeletePattern(ctx context.Context, pattern string) (deleted int, err error) {
	start := time.Now()
	defer func() { s.metrics.observe(backendMemory, "delete_pattern", start, err) }()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	for key := range s.entries {
		if glob.Glob(pattern, key) {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

// IncrementWithExpiry implements Store. Counters are stored as 8-byte
// big-endian integers.
func (s *MemoryStore) IncrementWithExpiry(
	ctx context.Context,
	key string,
	delta int64,
	expiry time.Duration,
) (count int64, err error) {
	start := time.Now()
	defer func() { s.metrics.observe(backendMemory, "increment", start, err) }()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	now := s.now()
	e, ok := s.lookup(key, now)
	if !ok {
		e = memoryEntry{expiresAt: s.expiry(expiry, now)}
	} else {
		if len(e.value) != 8 {
			return 0, fmt.Errorf("value at %q is not a counter", key)
		}
		count = int64(binary.BigEndian.Uint64(e.value))
	}

	count += delta
	e.value = binary.BigEndian.AppendUint64(nil, uint64(count))
	s.entries[key] = e
	return count, nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for _, e := range s.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Close implements Store. It is idempotent.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	s.entries = make(map[string]memoryEntry)
	return nil
}

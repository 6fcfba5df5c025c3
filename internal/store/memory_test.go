package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStore_GetSetDelete(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	value := []byte("v")
	require.NoError(t, s.Set(ctx, "k", value, 0))
	value[0] = 'x'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got, "stored value is a copy")

	require.NoError(t, s.Delete(ctx, "k"))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_TTL(t *testing.T) {
	t.Parallel()

	clock := &manualClock{now: time.Unix(1000, 0)}
	s := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Second))
	clock.Advance(999 * time.Millisecond)
	_, err := s.Get(ctx, "k")
	assert.NoError(t, err)

	clock.Advance(time.Millisecond)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DeletePattern(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	for _, k := range []string{"/svc.A/Get:1", "/svc.A/Get:2", "/svc.A/List:1"} {
		require.NoError(t, s.Set(ctx, k, []byte("x"), 0))
	}

	n, err := s.DeletePattern(ctx, "/svc.A/Get:*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, s.Len())

	n, err = s.DeletePattern(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemoryStore_IncrementWithExpiry(t *testing.T) {
	t.Parallel()

	clock := &manualClock{now: time.Unix(0, 0)}
	s := NewMemoryStore(WithClock(clock.Now))
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.IncrementWithExpiry(ctx, "c", 1, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	clock.Advance(59 * time.Second)
	got, err := s.IncrementWithExpiry(ctx, "c", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got, "expiry is not extended by later increments")

	clock.Advance(time.Second)
	got, err = s.IncrementWithExpiry(ctx, "c", 1, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestMemoryStore_IncrementNonCounter(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte("abc"), 0))

	_, err := s.IncrementWithExpiry(ctx, "k", 1, time.Second)
	assert.Error(t, err)
}

func TestMemoryStore_ConcurrentIncrement(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.IncrementWithExpiry(ctx, "c", 1, time.Minute)
		}()
	}
	wg.Wait()

	got, err := s.IncrementWithExpiry(ctx, "c", 0, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(50), got)
}

func TestMemoryStore_Closed(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	require.NoError(t, s.Close())

	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set(context.Background(), "k", nil, 0), ErrClosed)
	assert.NoError(t, s.Close())
}

func (s *MemoryStore) rawLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestMemoryStore_CleanupDropsUnreadWindows(t *testing.T) {
	t.Parallel()

	clock := &manualClock{now: time.Unix(0, 0)}
	s := NewMemoryStore(WithClock(clock.Now), WithCleanupInterval(0))
	ctx := context.Background()

	for w := 0; w < 1000; w++ {
		_, err := s.IncrementWithExpiry(ctx, fmt.Sprintf("rl:user:%d", w), 1, time.Second)
		require.NoError(t, err)
		clock.Advance(time.Second)
	}
	require.NoError(t, s.Set(ctx, "keep", []byte("v"), 0))

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1001, s.rawLen())

	assert.Equal(t, 1000, s.cleanupExpired())
	assert.Equal(t, 1, s.rawLen())
}

func TestMemoryStore_BackgroundCleanup(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(WithCleanupInterval(5 * time.Millisecond))
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_, err := s.IncrementWithExpiry(ctx, fmt.Sprintf("w:%d", i), 1, time.Millisecond)
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return s.rawLen() == 0 },
		2*time.Second, 5*time.Millisecond)
}

func TestMemoryStore_GetWithTTL(t *testing.T) {
	t.Parallel()

	clock := &manualClock{now: time.Unix(0, 0)}
	s := NewMemoryStore(WithClock(clock.Now), WithCleanupInterval(0))
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "short", []byte("v"), 5*time.Second))
	require.NoError(t, s.Set(ctx, "forever", []byte("v"), 0))
	clock.Advance(2 * time.Second)

	val, ttl, err := s.GetWithTTL(ctx, "short")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), val)
	assert.Equal(t, 3*time.Second, ttl)

	_, ttl, err = s.GetWithTTL(ctx, "forever")
	require.NoError(t, err)
	assert.Zero(t, ttl)

	_, _, err = s.GetWithTTL(ctx, "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_DeletePatternLiteralChars(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(WithCleanupInterval(0))
	ctx := context.Background()
	for _, k := range []string{"a?b", "axb", "[x]", "x"} {
		require.NoError(t, s.Set(ctx, k, []byte("v"), 0))
	}

	n, err := s.DeletePattern(ctx, "a?b")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.DeletePattern(ctx, "[x]")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, s.Len())
}

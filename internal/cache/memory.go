package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ryanuber/go-glob"
)

// memoryCache is the L1 tier: an LRU bounded by entry count. Expired
// entries are dropped lazily when read; capacity is enforced on insert.
type memoryCache struct {
	maxEntries int
	now        func() time.Time
	metrics    *Metrics

	mu       sync.Mutex
	items    map[string]*list.Element
	eviction *list.List

	hits   atomic.Int64
	misses atomic.Int64
}

type memoryCacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

func newMemoryCache(maxEntries int, now func() time.Time) *memoryCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	if now == nil {
		now = time.Now
	}
	return &memoryCache{
		maxEntries: maxEntries,
		now:        now,
		metrics:    GetMetrics(),
		items:      make(map[string]*list.Element),
		eviction:   list.New(),
	}
}

// Get implements Tier.
func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.miss()
		return nil, ErrCacheMiss
	}

	entry := elem.Value.(*memoryCacheEntry)
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		c.removeElement(elem)
		c.miss()
		return nil, ErrCacheMiss
	}

	c.eviction.MoveToFront(elem)
	c.hits.Add(1)
	c.metrics.hitsTotal.WithLabelValues(tierL1).Inc()
	return entry.value, nil
}

// Set implements Tier. Values are stored as given and must not be
// mutated by the caller afterwards.
func (c *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	entry := &memoryCacheEntry{key: key, value: value, expiresAt: expiresAt}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value = entry
		c.eviction.MoveToFront(elem)
		return nil
	}

	c.items[key] = c.eviction.PushFront(entry)
	for c.eviction.Len() > c.maxEntries {
		c.evictOldest()
	}
	c.metrics.l1Size.Set(float64(c.eviction.Len()))
	return nil
}

// Delete implements Tier.
func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	return nil
}

// DeletePattern implements Tier.
func (c *memoryCache) DeletePattern(_ context.Context, pattern string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.items {
		if glob.Glob(pattern, key) {
			c.removeElement(elem)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of entries, expired or not.
func (c *memoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eviction.Len()
}

func (c *memoryCache) stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: c.Len()}
}

func (c *memoryCache) miss() {
	c.misses.Add(1)
	c.metrics.missesTotal.WithLabelValues(tierL1).Inc()
}

// evictOldest removes the least recently used entry.
// Must be called with the lock held.
func (c *memoryCache) evictOldest() {
	if elem := c.eviction.Back(); elem != nil {
		c.removeElement(elem)
		c.metrics.evictionsTotal.Inc()
	}
}

// removeElement must be called with the lock held.
func (c *memoryCache) removeElement(elem *list.Element) {
	c.eviction.Remove(elem)
	delete(c.items, elem.Value.(*memoryCacheEntry).key)
}

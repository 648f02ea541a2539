// Package cache provides an in-memory TTL cache with an optional LRU bound.
package cache

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
)

// EvictReason says why an entry left the cache.
type EvictReason string

const (
	ReasonExpired  EvictReason = "expired"
	ReasonCapacity EvictReason = "capacity"
	ReasonDeleted  EvictReason = "deleted"
	ReasonCleared  EvictReason = "cleared"
)

// Options configures a Cache.
type Options struct {
	// DefaultTTL applies when Set is called with a non-positive ttl.
	DefaultTTL time.Duration
	// MaxEntries bounds the number of live entries; the least recently used
	// entry is evicted on overflow. Zero means unbounded.
	MaxEntries int
	// Now overrides the clock, for tests.
	Now func() time.Time
	// OnEvict is called for every entry that leaves the cache, with the cache
	// lock held. It must not call back into the cache.
	OnEvict func(key string, reason EvictReason)
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	Count      int           `json:"count"`
	DefaultTTL time.Duration `json:"default_ttl"`
	MaxEntries int           `json:"max_entries"`
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache maps string keys to values with per-entry expiry. A single mutex
// serializes every operation. Stored values are never modified; Set replaces
// the entry.
type Cache[V any] struct {
	mu         sync.Mutex
	lru        *simplelru.LRU
	defaultTTL time.Duration
	maxEntries int
	now        func() time.Time
	onEvict    func(string, EvictReason)

	// reason is attributed to removals triggered by the current operation.
	reason EvictReason
}

// New creates a cache.
func New[V any](opts Options) *Cache[V] {
	c := &Cache[V]{
		defaultTTL: opts.DefaultTTL,
		maxEntries: opts.MaxEntries,
		now:        opts.Now,
		onEvict:    opts.OnEvict,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.maxEntries < 0 {
		c.maxEntries = 0
	}

	size := c.maxEntries
	if size == 0 {
		size = math.MaxInt
	}
	// NewLRU only fails for non-positive sizes.
	c.lru, _ = simplelru.NewLRU(size, c.evicted)
	return c
}

func (c *Cache[V]) evicted(key, _ interface{}) {
	if c.onEvict != nil {
		c.onEvict(key.(string), c.reason)
	}
}

// Get returns the live value for key. Expired entries are removed and
// reported as missing.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	v, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	e := v.(*entry[V])
	if !c.now().Before(e.expiresAt) {
		c.reason = ReasonExpired
		c.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, replacing any existing entry and resetting its
// expiry. A non-positive ttl uses the default TTL.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.reason = ReasonCapacity
	c.lru.Add(key, &entry[V]{value: value, expiresAt: c.now().Add(ttl)})
}

// Delete removes key. Deleting a missing key is a no-op.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reason = ReasonDeleted
	return c.lru.Remove(key)
}

// Clear removes every entry and returns how many were held.
func (c *Cache[V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.lru.Len()
	c.reason = ReasonCleared
	c.lru.Purge()
	return n
}

// Stats removes expired entries and reports the remaining count.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweepLocked()
	return Stats{
		Count:      c.lru.Len(),
		DefaultTTL: c.defaultTTL,
		MaxEntries: c.maxEntries,
	}
}

// Sweep removes every expired entry and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sweepLocked()
}

func (c *Cache[V]) sweepLocked() int {
	now := c.now()
	c.reason = ReasonExpired

	removed := 0
	for _, k := range c.lru.Keys() {
		v, ok := c.lru.Peek(k)
		if !ok {
			continue
		}
		if !now.Before(v.(*entry[V]).expiresAt) {
			c.lru.Remove(k)
			removed++
		}
	}
	return removed
}

// Run sweeps expired entries every interval until ctx is done.
func (c *Cache[V]) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Package cache provides the TTL response cache shared by every platform
// extractor.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"mediagrab/pkg/errors"
	"mediagrab/pkg/media"
	"mediagrab/pkg/platform"
)

// Key identifies one cached extraction: one live entry per platform and
// canonical URL
type Key struct {
	Platform platform.Platform
	URL      string
}

func (k Key) String() string {
	return string(k.Platform) + "|" + k.URL
}

type entry struct {
	result    media.Result
	expiresAt time.Time
}

// Cache is a concurrent-safe TTL store of extraction results. Failure
// results are kept for a materially shorter negative TTL. Write races on
// one key are last-write-wins since entries are idempotent snapshots.
type Cache struct {
	mu          sync.RWMutex
	entries     map[Key]entry
	ttl         time.Duration
	negativeTTL time.Duration
	group       singleflight.Group
	now         func() time.Time
}

// New creates a cache with the given positive and negative TTLs
func New(ttl, negativeTTL time.Duration) *Cache {
	return &Cache{
		entries:     make(map[Key]entry),
		ttl:         ttl,
		negativeTTL: negativeTTL,
		now:         time.Now,
	}
}

// Get returns the live entry for key, marked cached. Expired entries are
// dropped on access and reported as a miss.
func (c *Cache) Get(key Key) (*media.Result, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; another writer may have
		// refreshed the entry.
		if cur, ok := c.entries[key]; ok && c.now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	result := e.result
	result.Cached = true
	return &result, true
}

// Set stores a result snapshot under key, choosing the negative TTL for
// failure results. Retryable failures are never stored: a retry may
// succeed, so caching them would pin a transient outage.
func (c *Cache) Set(key Key, result *media.Result) {
	if result == nil {
		return
	}

	ttl := c.ttl
	if result.Failed() {
		if errors.IsRetryable(result.ErrorCode) {
			return
		}
		ttl = c.negativeTTL
	}

	snapshot := *result
	snapshot.Cached = false

	c.mu.Lock()
	c.entries[key] = entry{result: snapshot, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Fetch returns the cached result for key or runs fill to produce one,
// deduplicating concurrent fills for the same key so only one provider
// call is in flight per key.
func (c *Cache) Fetch(key Key, fill func() (*media.Result, error)) (*media.Result, error) {
	if result, ok := c.Get(key); ok {
		return result, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		// A concurrent filler may have completed while we queued.
		if result, ok := c.Get(key); ok {
			return result, nil
		}
		result, err := fill()
		if err != nil {
			return nil, err
		}
		c.Set(key, result)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*media.Result), nil
}

// Invalidate removes one entry
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidatePlatform removes every entry for one platform
func (c *Cache) InvalidatePlatform(p platform.Platform) {
	c.mu.Lock()
	for key := range c.entries {
		if key.Platform == p {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// Purge removes all entries
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = make(map[Key]entry)
	c.mu.Unlock()
}

// Len returns the number of stored entries, counting expired ones not yet
// dropped
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

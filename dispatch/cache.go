package dispatch

import (
	"sync"
	"time"

	"github.com/goliatone/go-unified/core"
)

// adapterCache holds live adapter instances, one per pair, with TTL expiry.
// Eviction on credential rotation goes through Evict.
type adapterCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	nowFn   func() time.Time
	entries map[core.PairKey]adapterCacheEntry
}

type adapterCacheEntry struct {
	adapter   core.ProviderAdapter
	expiresAt time.Time
}

func newAdapterCache(ttl time.Duration, nowFn func() time.Time) *adapterCache {
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &adapterCache{
		ttl:     ttl,
		nowFn:   nowFn,
		entries: map[core.PairKey]adapterCacheEntry{},
	}
}

func (c *adapterCache) get(pair core.PairKey) (core.ProviderAdapter, bool) {
	if c == nil {
		return nil, false
	}
	now := c.nowFn()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpiredLocked(now)
	entry, ok := c.entries[pair]
	if !ok {
		return nil, false
	}
	return entry.adapter, true
}

func (c *adapterCache) put(pair core.PairKey, adapter core.ProviderAdapter) {
	if c == nil || adapter == nil {
		return
	}
	expiresAt := c.nowFn().Add(c.ttl)
	c.mu.Lock()
	c.entries[pair] = adapterCacheEntry{adapter: adapter, expiresAt: expiresAt}
	c.mu.Unlock()
}

func (c *adapterCache) evict(pair core.PairKey) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, pair)
	c.mu.Unlock()
}

func (c *adapterCache) evictExpiredLocked(now time.Time) {
	if c.ttl <= 0 {
		return
	}
	for pair, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, pair)
		}
	}
}

func (c *adapterCache) len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

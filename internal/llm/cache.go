package llm

import (
	"sync"
	"time"
)

// cacheEntry represents a cached validator opinion.
type cacheEntry struct {
	expiry  time.Time
	opinion Opinion
}

// opinionCache provides thread-safe caching for validator opinions,
// keyed by transaction hash, so repeat submissions don't burn budget.
type opinionCache struct {
	entries map[string]cacheEntry
	stopCh  chan struct{}
	ttl     time.Duration
	mu      sync.RWMutex
}

// newOpinionCache creates a new cache with the specified TTL.
func newOpinionCache(ttl time.Duration) *opinionCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	cache := &opinionCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}

	go cache.cleanup()

	return cache
}

// get retrieves an opinion if it exists and hasn't expired.
func (c *opinionCache) get(key string) (Opinion, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || time.Now().After(entry.expiry) {
		return Opinion{}, false
	}
	return entry.opinion, true
}

// set stores an opinion in the cache.
func (c *opinionCache) set(key string, opinion Opinion) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		opinion: opinion,
		expiry:  time.Now().Add(c.ttl),
	}
}

// cleanup periodically removes expired entries.
func (c *opinionCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiry) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine.
func (c *opinionCache) Close() {
	close(c.stopCh)
}

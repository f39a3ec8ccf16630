package storage

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// CachedStore decorates a Store with a TTL cache over Fetch, replacing the
// implicit process-global memoization the catalog viewer relied on with an
// explicit lifetime and an invalidation operation. Entries are keyed by
// bucket and object key; listing and writes always pass through.
type CachedStore struct {
	Store

	clock clockwork.Clock
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]fetchEntry
}

type fetchEntry struct {
	text    string
	fetched time.Time
}

// NewCached wraps store with a fetch cache holding entries for ttl.
func NewCached(store Store, ttl time.Duration, clock clockwork.Clock) *CachedStore {
	return &CachedStore{
		Store:   store,
		clock:   clock,
		ttl:     ttl,
		entries: make(map[string]fetchEntry),
	}
}

func (c *CachedStore) cacheKey(key string) string {
	return c.Bucket() + "/" + key
}

// Fetch returns the cached text when fresh, delegating otherwise. Failed
// fetches are not cached.
func (c *CachedStore) Fetch(ctx context.Context, key string) (string, error) {
	ck := c.cacheKey(key)

	c.mu.Lock()
	if e, ok := c.entries[ck]; ok && c.clock.Since(e.fetched) <= c.ttl {
		c.mu.Unlock()
		return e.text, nil
	}
	c.mu.Unlock()

	text, err := c.Store.Fetch(ctx, key)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[ck] = fetchEntry{text: text, fetched: c.clock.Now()}
	c.mu.Unlock()
	return text, nil
}

// Invalidate drops the cached entry for one key.
func (c *CachedStore) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, c.cacheKey(key))
	c.mu.Unlock()
}

// InvalidateAll drops every cached entry.
func (c *CachedStore) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]fetchEntry)
	c.mu.Unlock()
}

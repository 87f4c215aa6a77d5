// Package memorycache implements the redirect cache in process memory.
// It is used when no Redis address is configured and throughout the tests.
// Expired entries are dropped lazily on lookup.
package memorycache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type entry struct {
	url      string
	deadline time.Time
}

// MemoryCache is a map-based id -> destination URL cache with per-entry TTL.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New returns an empty in-memory cache.
func New() *MemoryCache {
	return &MemoryCache{
		entries: map[string]entry{},
	}
}

// Get returns the cached destination URL for the link id.
// The second return value reports whether a live entry was present.
func (c *MemoryCache) Get(ctx context.Context, linkID string) (string, bool, error) {
	c.mu.RLock()
	cached, found := c.entries[linkID]
	c.mu.RUnlock()

	if !found {
		return "", false, nil
	}

	if time.Now().After(cached.deadline) {
		c.mu.Lock()
		if current, stillThere := c.entries[linkID]; stillThere && current.deadline.Equal(cached.deadline) {
			delete(c.entries, linkID)
		}
		c.mu.Unlock()

		return "", false, nil
	}

	return cached.url, true, nil
}

// Set stores the destination URL with the given TTL. A non-positive TTL is a
// caller error: an already expired link must never enter the cache.
func (c *MemoryCache) Set(ctx context.Context, linkID, url string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("non-positive ttl %v for link %q", ttl, linkID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[linkID] = entry{
		url:      url,
		deadline: time.Now().Add(ttl),
	}

	return nil
}

// Invalidate removes the cached entry. Removing an absent entry is not an error.
func (c *MemoryCache) Invalidate(ctx context.Context, linkID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, linkID)

	return nil
}

// Ping always succeeds.
func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}

// Close discards every entry.
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = map[string]entry{}

	return nil
}

package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultMaxEntries = 1024

// MemoryCache is a size-bounded LRU with per-entry TTL, used when no Redis
// is configured.
type MemoryCache struct {
	lru *expirable.LRU[string, string]
}

// NewMemoryCache creates a cache holding at most maxEntries bodies for ttl
// each. A zero ttl keeps entries until they are evicted.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &MemoryCache{lru: expirable.NewLRU[string, string](maxEntries, nil, ttl)}
}

// Get returns the cached body, reporting a miss for absent or expired keys.
func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	value, ok := c.lru.Get(key)
	return value, ok, nil
}

// Set stores value and refreshes its TTL.
func (c *MemoryCache) Set(_ context.Context, key, value string) error {
	c.lru.Add(key, value)
	return nil
}

// Invalidate drops key.
func (c *MemoryCache) Invalidate(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Len reports the number of entries, including expired ones not yet purged.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Close drops every entry.
func (c *MemoryCache) Close() error {
	c.lru.Purge()
	return nil
}

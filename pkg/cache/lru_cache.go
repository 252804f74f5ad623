package cache

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type lruEntry struct {
	raw       []byte
	expiresAt time.Time
}

// LRUCache is the process-local L1 tier: an in-memory, size-bounded cache
// fronting RedisCache, mirroring the teacher's use of
// hashicorp/golang-lru for hot-path lookups that shouldn't round-trip to
// Redis on every call.
type LRUCache struct {
	store *lru.Cache[string, lruEntry]
}

// NewLRUCache creates an LRUCache capped at maxEntries, the configured
// max_cache_entries ceiling (spec.md §6).
func NewLRUCache(maxEntries int) (*LRUCache, error) {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	store, err := lru.New[string, lruEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &LRUCache{store: store}, nil
}

func (c *LRUCache) Get(_ context.Context, key string, value interface{}) error {
	entry, ok := c.store.Get(key)
	if !ok {
		return ErrMiss
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.store.Remove(key)
		return ErrMiss
	}
	return json.Unmarshal(entry.raw, value)
}

func (c *LRUCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}
	c.store.Add(key, lruEntry{raw: raw, expiresAt: expiresAt})
	return nil
}

func (c *LRUCache) Delete(_ context.Context, key string) error {
	c.store.Remove(key)
	return nil
}

func (c *LRUCache) Exists(ctx context.Context, key string) (bool, error) {
	return c.store.Contains(key), nil
}

func (c *LRUCache) Flush(_ context.Context) error {
	c.store.Purge()
	return nil
}

func (c *LRUCache) Close() error { return nil }

// Len reports the current number of cached entries, used for capacity metrics.
func (c *LRUCache) Len() int { return c.store.Len() }

package cache

import (
	"context"
	"time"
)

// TieredCache checks the in-process LRU before falling through to Redis,
// populating the LRU on a Redis hit. This is the "MultiLevelCache" the
// teacher's pkg/cache/cache.go leaves as a TODO; the context engine's
// resolved-context cache is its primary consumer.
type TieredCache struct {
	l1 *LRUCache
	l2 Cache
}

// NewTieredCache composes an LRUCache in front of any Cache implementation.
func NewTieredCache(l1 *LRUCache, l2 Cache) *TieredCache {
	return &TieredCache{l1: l1, l2: l2}
}

func (c *TieredCache) Get(ctx context.Context, key string, value interface{}) error {
	if err := c.l1.Get(ctx, key, value); err == nil {
		return nil
	}
	if err := c.l2.Get(ctx, key, value); err != nil {
		return err
	}
	_ = c.l1.Set(ctx, key, value, 0)
	return nil
}

func (c *TieredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if err := c.l2.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.l1.Set(ctx, key, value, ttl)
}

func (c *TieredCache) Delete(ctx context.Context, key string) error {
	_ = c.l1.Delete(ctx, key)
	return c.l2.Delete(ctx, key)
}

func (c *TieredCache) Exists(ctx context.Context, key string) (bool, error) {
	if ok, err := c.l1.Exists(ctx, key); err == nil && ok {
		return true, nil
	}
	return c.l2.Exists(ctx, key)
}

func (c *TieredCache) Flush(ctx context.Context) error {
	_ = c.l1.Flush(ctx)
	return c.l2.Flush(ctx)
}

func (c *TieredCache) Close() error {
	_ = c.l1.Close()
	return c.l2.Close()
}

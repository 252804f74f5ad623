package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func newTestRedisCache(t *testing.T) *RedisCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisCacheFromClient(client)
}

func TestRedisCache_SetGet(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
	}
	require.NoError(t, c.Set(ctx, "k1", payload{Name: "alpha"}, time.Minute))

	var out payload
	require.NoError(t, c.Get(ctx, "k1", &out))
	require.Equal(t, "alpha", out.Name)
}

func TestRedisCache_Miss(t *testing.T) {
	c := newTestRedisCache(t)
	var out map[string]string
	err := c.Get(context.Background(), "missing", &out)
	require.ErrorIs(t, err, ErrMiss)
}

func TestRedisCache_Delete(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k2", "v", time.Minute))

	exists, err := c.Exists(ctx, "k2")
	require.NoError(t, err)
	require.True(t, exists)

	require.NoError(t, c.Delete(ctx, "k2"))
	exists, err = c.Exists(ctx, "k2")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestLRUCache_ExpiresByTTL(t *testing.T) {
	l1, err := NewLRUCache(10)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, l1.Set(ctx, "k", "v", time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	var out string
	err = l1.Get(ctx, "k", &out)
	require.ErrorIs(t, err, ErrMiss)
}

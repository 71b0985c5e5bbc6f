package querycache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisQueryCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	return NewRedisQueryCache(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestQueryCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "stats")
	require.NoError(t, err)
	assert.False(t, ok, "cold cache must miss")

	require.NoError(t, c.Set(ctx, "stats", []byte(`{"sources":3}`), time.Minute))

	payload, ok, err := c.Get(ctx, "stats")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"sources":3}`), payload)

	// Keys are namespaced per logical entry.
	_, ok, err = c.Get(ctx, "list:|x|1|20")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueryCacheInvalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "stats", []byte("old"), time.Minute))
	require.NoError(t, c.Invalidate(ctx))

	_, ok, err := c.Get(ctx, "stats")
	require.NoError(t, err)
	assert.False(t, ok, "generation bump must hide pre-invalidation entries")

	// The cache remains usable under the new generation.
	require.NoError(t, c.Set(ctx, "stats", []byte("new"), time.Minute))
	payload, ok, err := c.Get(ctx, "stats")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("new"), payload)
}

func TestQueryCacheTTLExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "stats", []byte("x"), 30*time.Second))

	mr.FastForward(31 * time.Second)

	_, ok, err := c.Get(ctx, "stats")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueryCacheServerGone(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, _, err := c.Get(context.Background(), "stats")
	assert.Error(t, err, "transport failures must surface so callers can degrade")
}

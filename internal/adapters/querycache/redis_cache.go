// Package querycache provides a TTL-keyed Redis cache for rendered
// read-path payloads (list pages, stats). It replaces the ambient in-memory
// query cache of earlier iterations with an explicit, bounded component.
package querycache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueryCache invalidates by bumping a generation counter embedded in
// every key rather than scanning the keyspace; superseded entries simply age
// out through their TTL.
type RedisQueryCache struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisQueryCache(rdb *redis.Client) *RedisQueryCache {
	return &RedisQueryCache{rdb: rdb, prefix: "dmx:query"}
}

func (c *RedisQueryCache) genKey() string { return c.prefix + ":gen" }

func (c *RedisQueryCache) fullKey(ctx context.Context, key string) (string, error) {
	gen, err := c.rdb.Get(ctx, c.genKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("query cache: read generation: %w", err)
	}
	return fmt.Sprintf("%s:%d:%s", c.prefix, gen, key), nil
}

func (c *RedisQueryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c.rdb == nil {
		return nil, false, errors.New("query cache: client is nil")
	}

	full, err := c.fullKey(ctx, key)
	if err != nil {
		return nil, false, err
	}

	payload, err := c.rdb.Get(ctx, full).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query cache: get %q: %w", key, err)
	}

	return payload, true, nil
}

func (c *RedisQueryCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if c.rdb == nil {
		return errors.New("query cache: client is nil")
	}

	full, err := c.fullKey(ctx, key)
	if err != nil {
		return err
	}

	if err := c.rdb.Set(ctx, full, payload, ttl).Err(); err != nil {
		return fmt.Errorf("query cache: set %q: %w", key, err)
	}

	return nil
}

// Invalidate makes every cached payload unreachable by advancing the
// generation; called after any distance write or cascade delete.
func (c *RedisQueryCache) Invalidate(ctx context.Context) error {
	if c.rdb == nil {
		return errors.New("query cache: client is nil")
	}

	if err := c.rdb.Incr(ctx, c.genKey()).Err(); err != nil {
		return fmt.Errorf("query cache: bump generation: %w", err)
	}

	return nil
}

package redis

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/handoff/internal/infra/cache"
)

// Cache implements cache.Cache on Redis. Expiry is delegated to Redis TTLs.
type Cache struct {
	rdb    *redis.Client
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCache creates a Redis-backed cache over an existing client.
func NewCache(client *Client) *Cache {
	return &Cache{rdb: client.rdb}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache key: %w", err)
	}
	c.hits.Add(1)
	return data, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache key: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache key: %w", err)
	}
	return nil
}

// Stats reports hit/miss counters tracked in-process and the current key
// count. The key count is best-effort; it reads the whole logical database.
func (c *Cache) Stats() cache.Stats {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	entries, err := c.rdb.DBSize(ctx).Result()
	if err != nil {
		entries = 0
	}
	return cache.Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: entries,
	}
}

// Close is a no-op; the underlying client is owned by the caller.
func (c *Cache) Close() error {
	return nil
}

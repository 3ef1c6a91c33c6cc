package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"todo-sync/pkg/logger"
)

// TodosKey holds the serialized GET /api/todos response.
const TodosKey = "todos:all"

// Cache is the Redis list cache. A nil *Cache is valid and caches nothing.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Dial parses url, sizes the pool and pings. An empty url returns a nil cache.
func Dial(ctx context.Context, url string, poolSize int, ttl time.Duration) (*Cache, error) {
	if url == "" {
		logger.Info(ctx, "REDIS_URL not set; list cache disabled")
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if poolSize > 0 {
		opts.PoolSize = poolSize
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	logger.Info(ctx, "Redis client initialized", "pool_size", opts.PoolSize)
	return New(client, ttl), nil
}

// GetRaw returns the cached list body. Misses and errors both report false.
func (c *Cache) GetRaw(ctx context.Context) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	b, err := c.client.Get(ctx, TodosKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logger.Debug(ctx, "Redis get todos failed", "error", err)
		return nil, false
	}
	return b, true
}

// SetRaw stores b with the configured TTL.
func (c *Cache) SetRaw(ctx context.Context, b []byte) {
	if c == nil {
		return
	}
	if err := c.client.Set(ctx, TodosKey, b, c.ttl).Err(); err != nil {
		logger.Debug(ctx, "Redis set todos failed", "error", err)
	}
}

// Invalidate deletes the list key so the next read goes to the repository.
func (c *Cache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, TodosKey).Err(); err != nil {
		logger.Debug(ctx, "Redis invalidate todos failed", "error", err)
	}
}

func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache implements Cache over Redis.
type RedisCache struct {
	mu      sync.RWMutex
	client  *redis.Client
	opts    *redis.Options
	healthy atomic.Bool
	logger  *zap.Logger
}

// NewRedisCache creates the cache adapter and verifies the connection.
func NewRedisCache(host string, port int, password string, db int, logger *zap.Logger) (*RedisCache, error) {
	c := &RedisCache{
		opts: &redis.Options{
			Addr:     fmt.Sprintf("%s:%d", host, port),
			Password: password,
			DB:       db,
		},
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Reconnect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return c, nil
}

// Get retrieves a cached value, returning ErrNotFound on a miss.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	value, err := c.getClient().Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores a value with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.getClient().Set(ctx, key, value, ttl).Err()
}

// Delete removes a key. Deleting an absent key is not an error.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.getClient().Del(ctx, key).Err()
}

// Ping probes the Redis connection. A failed probe clears the
// adapter's health flag; the supervisor reconnects on its next tick.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.getClient().Ping(ctx).Err(); err != nil {
		c.healthy.Store(false)
		return err
	}
	return nil
}

// Healthy reports the adapter's own health flag.
func (c *RedisCache) Healthy() bool {
	return c.healthy.Load()
}

// Reconnect dials a fresh client. Safe to call on an
// already-connected cache.
func (c *RedisCache) Reconnect(ctx context.Context) error {
	client := redis.NewClient(c.opts)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return err
	}

	c.mu.Lock()
	old := c.client
	c.client = client
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	c.healthy.Store(true)
	c.logger.Info("connected to Redis")
	return nil
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *RedisCache) getClient() *redis.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

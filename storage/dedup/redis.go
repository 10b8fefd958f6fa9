package dedup

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"wabridge/config"
)

// RedisCache implements Cache with SETNX and a TTL sized to outlive the
// upstream's redelivery window.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg config.RedisConfig, ttl time.Duration, logger *log.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Printf("Redis dedup cache connected (addr: %s, ttl: %v)", cfg.Addr, ttl)
	return &RedisCache{client: client, ttl: ttl, logger: logger}, nil
}

// FirstSeen claims the delivery ID with SETNX. Redis errors fail open.
func (c *RedisCache) FirstSeen(ctx context.Context, deliveryID string) bool {
	key := "seen:" + deliveryID

	acquired, err := c.client.SetNX(ctx, key, "1", c.ttl).Result()
	if err != nil {
		c.logger.Printf("Redis dedup error for %s (failing open): %v", deliveryID, err)
		return true
	}
	return acquired
}

// Release deletes the claim so a redelivery passes the filter again.
func (c *RedisCache) Release(ctx context.Context, deliveryID string) {
	key := "seen:" + deliveryID
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Printf("Redis dedup release failed for %s: %v", deliveryID, err)
	}
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

var _ Cache = (*RedisCache)(nil)

// NopCache is used when no Redis is configured; every ID looks new and the
// ledger does all duplicate detection.
type NopCache struct{}

// FirstSeen always reports true.
func (NopCache) FirstSeen(ctx context.Context, deliveryID string) bool { return true }

// Release is a no-op.
func (NopCache) Release(ctx context.Context, deliveryID string) {}

// Close is a no-op.
func (NopCache) Close() error { return nil }

var _ Cache = NopCache{}

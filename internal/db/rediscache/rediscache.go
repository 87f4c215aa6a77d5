// Package rediscache implements the redirect cache on top of Redis.
// Entries expire on their own: the TTL set at insertion never exceeds the
// remaining lifetime of the link, so the cache can be trusted blindly on
// the redirect path.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "link:"

// RedisCache is a Redis-backed id -> destination URL cache.
type RedisCache struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, addr, password string, database int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       database,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("error while `client.Ping()` calling: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get returns the cached destination URL for the link id.
// The second return value reports whether the entry was present.
func (c *RedisCache) Get(ctx context.Context, linkID string) (string, bool, error) {
	url, err := c.client.Get(ctx, keyPrefix+linkID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}

	return url, true, nil
}

// Set stores the destination URL with the given TTL. A non-positive TTL is a
// caller error: an already expired link must never enter the cache.
func (c *RedisCache) Set(ctx context.Context, linkID, url string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("non-positive ttl %v for link %q", ttl, linkID)
	}

	return c.client.Set(ctx, keyPrefix+linkID, url, ttl).Err()
}

// Invalidate removes the cached entry. Removing an absent entry is not an error.
func (c *RedisCache) Invalidate(ctx context.Context, linkID string) error {
	return c.client.Del(ctx, keyPrefix+linkID).Err()
}

// Ping verifies connectivity with Redis.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client connections.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

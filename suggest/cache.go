package suggest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "smarttodo:suggest:"

// Cache stores parsed suggestion payloads.
type Cache interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CacheKey derives the cache key for one completion request.
func CacheKey(model, system, prompt string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(system))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// RedisCache implements Cache with plain Redis string keys.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing client. The caller owns the client unless
// Close is called.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// DialRedisCache connects to addr and verifies the connection with PING.
func DialRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("suggest: redis ping %s: %w", addr, err)
	}
	return &RedisCache{client: rdb}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

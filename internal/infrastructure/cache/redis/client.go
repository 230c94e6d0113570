// Package redis provides the Redis cache client implementation.
package redis

import (
	"context"
	"time"

	"github.com/chatforge/chat-service/internal/core/cache"
)

// Client implements the cache.Client interface for Redis.
type Client struct {
	cache *Cache
}

// NewClient creates a new Redis cache client.
func NewClient(cfg Config) (*Client, error) {
	c, err := NewCache(cfg)
	if err != nil {
		return nil, err
	}

	return &Client{cache: c}, nil
}

// GetCache returns the underlying Cache implementation.
func (c *Client) GetCache() cache.Cache {
	return c.cache
}

// Get retrieves a value from the cache.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	return c.cache.Get(ctx, key)
}

// Set stores a value in the cache.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.cache.Set(ctx, key, value, ttl)
}

// SetNX atomically stores a value only if the key does not exist.
func (c *Client) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return c.cache.SetNX(ctx, key, value, ttl)
}

// Delete removes a key from the cache.
func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	return c.cache.Delete(ctx, key)
}

// DeletePattern removes all keys matching the given pattern.
func (c *Client) DeletePattern(ctx context.Context, pattern string) (int64, error) {
	return c.cache.DeletePattern(ctx, pattern)
}

// Incr atomically increments the integer value at key by one.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return c.cache.Incr(ctx, key)
}

// Expire sets the TTL of an existing key.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.cache.Expire(ctx, key, ttl)
}

// CompareAndDelete deletes the key only if its value matches.
func (c *Client) CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error) {
	return c.cache.CompareAndDelete(ctx, key, value)
}

// CompareAndExpire resets the key's TTL only if its value matches.
func (c *Client) CompareAndExpire(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return c.cache.CompareAndExpire(ctx, key, value, ttl)
}

// Ping checks if the cache connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.cache.Ping(ctx)
}

// Close closes the cache client connection.
func (c *Client) Close() error {
	return c.cache.Close()
}

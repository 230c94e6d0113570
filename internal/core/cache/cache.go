// Package cache defines the key-value store interface and factory types.
package cache

import (
	"context"
	"time"
)

// Cache defines the interface for key-value store operations.
//
// Besides plain get/set it exposes the atomic primitives the lock and rate
// limiter are built on: set-if-absent-with-expiry, atomic increment, and
// token-checked compare-and-delete / compare-and-reexpire. Implementations
// must guarantee atomicity of each primitive; callers never do a
// read-modify-write without one.
type Cache interface {
	// Get retrieves a value from the cache by key.
	// Returns nil if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with the given TTL.
	// A ttl of 0 stores the key without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX atomically stores a value only if the key does not exist.
	// Returns true if the value was stored.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// DeletePattern removes all keys matching the given pattern.
	// Returns the number of keys deleted.
	DeletePattern(ctx context.Context, pattern string) (int64, error)

	// Incr atomically increments the integer value at key by one,
	// creating it at zero first if absent. Returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets the TTL of an existing key.
	// Returns false if the key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// CompareAndDelete deletes the key only if its current value equals
	// the given value. Returns true if the key was deleted.
	CompareAndDelete(ctx context.Context, key string, value []byte) (bool, error)

	// CompareAndExpire resets the TTL of the key only if its current value
	// equals the given value. Returns true if the TTL was updated.
	CompareAndExpire(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Ping checks if the cache connection is alive.
	Ping(ctx context.Context) error

	// Close closes the cache connection.
	Close() error
}

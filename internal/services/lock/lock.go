// Package lock provides a Redis-backed distributed lock with owner tokens.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatforge/chat-service/internal/core/cache"
)

// ErrNotAcquired is returned when the lock could not be acquired after all
// retry attempts.
var ErrNotAcquired = errors.New("lock not acquired")

const lockKeyPrefix = "lock:"

// Options control a single acquisition attempt.
type Options struct {
	// TTL is the lock expiry. The lock auto-releases after this duration
	// even if the holder never calls Release.
	TTL time.Duration

	// RetryTimes is the number of additional attempts after the first
	// failed SetNX.
	RetryTimes int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

// Manager acquires distributed locks on named resources.
type Manager struct {
	cache    cache.Cache
	defaults Options
}

// NewManager creates a lock manager with default acquisition options.
func NewManager(c cache.Cache, defaults Options) *Manager {
	if defaults.TTL <= 0 {
		defaults.TTL = 60 * time.Second
	}
	if defaults.RetryTimes < 0 {
		defaults.RetryTimes = 0
	}
	if defaults.RetryDelay <= 0 {
		defaults.RetryDelay = 200 * time.Millisecond
	}
	return &Manager{cache: c, defaults: defaults}
}

// Lock is a held lock. Callers must Release it when done; Release is safe
// to call even if ownership was lost to TTL expiry.
type Lock struct {
	cache    cache.Cache
	key      string
	token    string
	ttl      time.Duration
	released bool
}

// Acquire attempts to take the lock on resource using the manager defaults.
func (m *Manager) Acquire(ctx context.Context, resource string) (*Lock, error) {
	return m.AcquireWithOptions(ctx, resource, m.defaults)
}

// AcquireConversation takes the per-conversation dispatch lock.
func (m *Manager) AcquireConversation(ctx context.Context, conversationID string) (*Lock, error) {
	return m.Acquire(ctx, fmt.Sprintf("conversation:%s", conversationID))
}

// AcquireWithOptions attempts to take the lock on resource, retrying up to
// opts.RetryTimes extra attempts with opts.RetryDelay between them.
//
// A store error aborts acquisition immediately. The lock is the mutual
// exclusion guarantee for message dispatch, so an unreachable store means
// no lock rather than a free pass.
func (m *Manager) AcquireWithOptions(ctx context.Context, resource string, opts Options) (*Lock, error) {
	if opts.TTL <= 0 {
		opts.TTL = m.defaults.TTL
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = m.defaults.RetryDelay
	}

	key := lockKeyPrefix + resource
	token := uuid.New().String()

	attempts := opts.RetryTimes + 1
	for i := 0; i < attempts; i++ {
		acquired, err := m.cache.SetNX(ctx, key, []byte(token), opts.TTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", resource, err)
		}
		if acquired {
			log.Debug().
				Str("resource", resource).
				Str("token", token).
				Int("attempt", i+1).
				Msg("Lock acquired")
			return &Lock{
				cache: m.cache,
				key:   key,
				token: token,
				ttl:   opts.TTL,
			}, nil
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(opts.RetryDelay):
		}
	}

	log.Debug().
		Str("resource", resource).
		Int("attempts", attempts).
		Msg("Lock acquisition exhausted retries")
	return nil, ErrNotAcquired
}

// Release gives the lock back. It only deletes the key if this lock still
// owns it, so a holder whose TTL expired cannot free a lock someone else
// has since taken. Returns true if the key was deleted by this call.
func (l *Lock) Release(ctx context.Context) (bool, error) {
	if l.released {
		return false, nil
	}
	l.released = true

	deleted, err := l.cache.CompareAndDelete(ctx, l.key, []byte(l.token))
	if err != nil {
		return false, fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if !deleted {
		log.Warn().
			Str("key", l.key).
			Msg("Lock release found no matching owner, likely expired")
	}
	return deleted, nil
}

// Extend pushes the expiry out by extra beyond the original TTL, but only
// while this lock still owns the key. Returns true if the TTL was reset.
func (l *Lock) Extend(ctx context.Context, extra time.Duration) (bool, error) {
	if l.released {
		return false, nil
	}

	extended, err := l.cache.CompareAndExpire(ctx, l.key, []byte(l.token), l.ttl+extra)
	if err != nil {
		return false, fmt.Errorf("failed to extend lock %s: %w", l.key, err)
	}
	return extended, nil
}

// Token exposes the owner token, mainly for tests and diagnostics.
func (l *Lock) Token() string {
	return l.token
}

package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rediscache "github.com/chatforge/chat-service/internal/infrastructure/cache/redis"
	"github.com/chatforge/chat-service/internal/services/lock"
)

func setupManager(t *testing.T, opts lock.Options) (*miniredis.Miniredis, *lock.Manager) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	c, err := rediscache.NewCache(rediscache.Config{
		Host: mr.Host(),
		Port: mr.Port(),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		c.Close()
		mr.Close()
	})

	return mr, lock.NewManager(c, opts)
}

func fastOptions() lock.Options {
	return lock.Options{
		TTL:        time.Minute,
		RetryTimes: 2,
		RetryDelay: 5 * time.Millisecond,
	}
}

func TestManager_AcquireAndRelease(t *testing.T) {
	_, manager := setupManager(t, fastOptions())
	ctx := context.Background()

	guard, err := manager.Acquire(ctx, "conversation:c1")
	require.NoError(t, err)
	require.NotNil(t, guard)

	released, err := guard.Release(ctx)
	assert.NoError(t, err)
	assert.True(t, released)
}

func TestManager_MutualExclusion(t *testing.T) {
	_, manager := setupManager(t, fastOptions())
	ctx := context.Background()

	first, err := manager.Acquire(ctx, "conversation:c1")
	require.NoError(t, err)

	_, err = manager.Acquire(ctx, "conversation:c1")
	assert.ErrorIs(t, err, lock.ErrNotAcquired)

	_, err = first.Release(ctx)
	require.NoError(t, err)

	second, err := manager.Acquire(ctx, "conversation:c1")
	assert.NoError(t, err)
	assert.NotNil(t, second)
}

func TestManager_DifferentResourcesIndependent(t *testing.T) {
	_, manager := setupManager(t, fastOptions())
	ctx := context.Background()

	first, err := manager.Acquire(ctx, "conversation:c1")
	require.NoError(t, err)
	defer first.Release(ctx)

	second, err := manager.Acquire(ctx, "conversation:c2")
	assert.NoError(t, err)
	assert.NotNil(t, second)
}

func TestManager_AcquireAfterTTLExpiry(t *testing.T) {
	mr, manager := setupManager(t, lock.Options{
		TTL:        time.Second,
		RetryTimes: 0,
		RetryDelay: 5 * time.Millisecond,
	})
	ctx := context.Background()

	_, err := manager.Acquire(ctx, "conversation:c1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	guard, err := manager.Acquire(ctx, "conversation:c1")
	assert.NoError(t, err)
	assert.NotNil(t, guard)
}

func TestLock_ReleaseAfterSteal(t *testing.T) {
	mr, manager := setupManager(t, lock.Options{
		TTL:        time.Second,
		RetryTimes: 0,
		RetryDelay: 5 * time.Millisecond,
	})
	ctx := context.Background()

	first, err := manager.Acquire(ctx, "conversation:c1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	second, err := manager.Acquire(ctx, "conversation:c1")
	require.NoError(t, err)

	// The expired holder must not free the new holder's lock.
	released, err := first.Release(ctx)
	assert.NoError(t, err)
	assert.False(t, released)

	released, err = second.Release(ctx)
	assert.NoError(t, err)
	assert.True(t, released)
}

func TestLock_ReleaseTwice(t *testing.T) {
	_, manager := setupManager(t, fastOptions())
	ctx := context.Background()

	guard, err := manager.Acquire(ctx, "conversation:c1")
	require.NoError(t, err)

	released, err := guard.Release(ctx)
	require.NoError(t, err)
	require.True(t, released)

	released, err = guard.Release(ctx)
	assert.NoError(t, err)
	assert.False(t, released)
}

func TestLock_Extend(t *testing.T) {
	mr, manager := setupManager(t, lock.Options{
		TTL:        time.Second,
		RetryTimes: 0,
		RetryDelay: 5 * time.Millisecond,
	})
	ctx := context.Background()

	guard, err := manager.Acquire(ctx, "conversation:c1")
	require.NoError(t, err)

	extended, err := guard.Extend(ctx, time.Minute)
	assert.NoError(t, err)
	assert.True(t, extended)

	// Past the original TTL but within the extension.
	mr.FastForward(2 * time.Second)

	_, err = manager.Acquire(ctx, "conversation:c1")
	assert.ErrorIs(t, err, lock.ErrNotAcquired)
}

func TestLock_ExtendAfterExpiry(t *testing.T) {
	mr, manager := setupManager(t, lock.Options{
		TTL:        time.Second,
		RetryTimes: 0,
		RetryDelay: 5 * time.Millisecond,
	})
	ctx := context.Background()

	guard, err := manager.Acquire(ctx, "conversation:c1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	extended, err := guard.Extend(ctx, time.Minute)
	assert.NoError(t, err)
	assert.False(t, extended)
}

func TestManager_RetrySucceedsWhenFreed(t *testing.T) {
	_, manager := setupManager(t, lock.Options{
		TTL:        time.Minute,
		RetryTimes: 10,
		RetryDelay: 10 * time.Millisecond,
	})
	ctx := context.Background()

	first, err := manager.Acquire(ctx, "conversation:c1")
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		first.Release(context.Background())
	}()

	second, err := manager.Acquire(ctx, "conversation:c1")
	assert.NoError(t, err)
	assert.NotNil(t, second)
}

func TestManager_AcquireRespectsContext(t *testing.T) {
	_, manager := setupManager(t, lock.Options{
		TTL:        time.Minute,
		RetryTimes: 100,
		RetryDelay: 50 * time.Millisecond,
	})

	first, err := manager.Acquire(context.Background(), "conversation:c1")
	require.NoError(t, err)
	defer first.Release(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = manager.Acquire(ctx, "conversation:c1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_FailClosedOnStoreError(t *testing.T) {
	mr, manager := setupManager(t, fastOptions())

	mr.Close()

	_, err := manager.Acquire(context.Background(), "conversation:c1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, lock.ErrNotAcquired)
}

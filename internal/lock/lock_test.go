package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLock(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	return &Redis{Client: client, TTL: time.Second}, srv
}

func TestAcquireIsExclusive(t *testing.T) {
	l, _ := testLock(t)
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, "checkout:user-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "checkout:user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	release(ctx)
	_, ok, err = l.Acquire(ctx, "checkout:user-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIndependentKeysDoNotContend(t *testing.T) {
	l, _ := testLock(t)
	ctx := context.Background()

	_, ok, err := l.Acquire(ctx, "checkout:user-1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "checkout:user-2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStaleReleaseDoesNotFreeNewHolder(t *testing.T) {
	l, srv := testLock(t)
	ctx := context.Background()

	staleRelease, ok, err := l.Acquire(ctx, "checkout:user-1")
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate TTL expiry followed by another holder taking the lock.
	srv.FastForward(2 * time.Second)
	_, ok, err = l.Acquire(ctx, "checkout:user-1")
	require.NoError(t, err)
	require.True(t, ok)

	staleRelease(ctx)
	_, ok, err = l.Acquire(ctx, "checkout:user-1")
	require.NoError(t, err)
	assert.False(t, ok, "stale release must not delete the new holder's lock")
}

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalAcquireRelease(t *testing.T) {
	l := NewLocal(time.Second)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))

	// Releasable again after release.
	lease2, err := l.Acquire(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, lease2.Release(ctx))
}

func TestLocalHeld(t *testing.T) {
	l := NewLocal(100 * time.Millisecond)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "acme")
	require.NoError(t, err)
	defer lease.Release(ctx)

	_, err = l.Acquire(ctx, "acme")
	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestLocalIndependentWorkspaces(t *testing.T) {
	l := NewLocal(100 * time.Millisecond)
	ctx := context.Background()

	a, err := l.Acquire(ctx, "acme")
	require.NoError(t, err)
	defer a.Release(ctx)

	b, err := l.Acquire(ctx, "globex")
	require.NoError(t, err)
	defer b.Release(ctx)
}

func TestLocalWaitsForHolder(t *testing.T) {
	l := NewLocal(2 * time.Second)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "acme")
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		lease.Release(context.Background())
	}()

	lease2, err := l.Acquire(ctx, "acme")
	require.NoError(t, err)
	lease2.Release(ctx)
}

func TestLocalReleaseIdempotent(t *testing.T) {
	l := NewLocal(time.Second)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
	require.NoError(t, lease.Release(ctx))
}

func TestNewFallsBackToLocal(t *testing.T) {
	l, err := New("", 0, 0, 0)
	require.NoError(t, err)
	_, ok := l.(*LocalLocker)
	assert.True(t, ok)
}

func newRedisLocker(t *testing.T, wait time.Duration) (*miniredis.Miniredis, *RedisLocker) {
	t.Helper()
	srv := miniredis.RunT(t)
	l, err := NewRedis(srv.Addr(), 0, time.Minute, wait)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return srv, l
}

func TestRedisAcquireRelease(t *testing.T) {
	srv, l := newRedisLocker(t, time.Second)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, srv.Exists(lockKey("acme")))

	require.NoError(t, lease.Release(ctx))
	assert.False(t, srv.Exists(lockKey("acme")))
}

func TestRedisHeld(t *testing.T) {
	_, l := newRedisLocker(t, 200*time.Millisecond)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "acme")
	require.NoError(t, err)
	defer lease.Release(ctx)

	_, err = l.Acquire(ctx, "acme")
	assert.ErrorIs(t, err, ErrLockHeld)
}

func TestRedisIndependentWorkspaces(t *testing.T) {
	_, l := newRedisLocker(t, 200*time.Millisecond)
	ctx := context.Background()

	a, err := l.Acquire(ctx, "acme")
	require.NoError(t, err)
	defer a.Release(ctx)

	b, err := l.Acquire(ctx, "globex")
	require.NoError(t, err)
	defer b.Release(ctx)
}

func TestRedisReleaseChecksToken(t *testing.T) {
	srv, l := newRedisLocker(t, 200*time.Millisecond)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "acme")
	require.NoError(t, err)

	// Simulate the key expiring and another holder taking over.
	srv.FastForward(2 * time.Minute)
	lease2, err := l.Acquire(ctx, "acme")
	require.NoError(t, err)
	defer lease2.Release(ctx)

	// The stale lease must not delete the new holder's key.
	require.NoError(t, lease.Release(ctx))
	assert.True(t, srv.Exists(lockKey("acme")))
}

func TestRedisAcquireWaitsForRelease(t *testing.T) {
	_, l := newRedisLocker(t, 2*time.Second)
	ctx := context.Background()

	lease, err := l.Acquire(ctx, "acme")
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		lease.Release(context.Background())
	}()

	lease2, err := l.Acquire(ctx, "acme")
	require.NoError(t, err)
	lease2.Release(ctx)
}

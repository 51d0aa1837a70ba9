package redis_test

import (
	"context"
	"testing"
	"time"

	redisStore "acquiring-gateway/internal/adapter/storage/redis"
	"acquiring-gateway/internal/core/ports"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLockStore(t *testing.T) (*redisStore.LockStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return redisStore.NewLockStore(client, 10*time.Millisecond, 0), mr
}

func TestLockStore_AcquireRelease(t *testing.T) {
	store, _ := newLockStore(t)
	ctx := context.Background()

	lease, err := store.Acquire(ctx, "payment:p1", "w1", time.Minute, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "payment:p1", lease.Key)
	assert.Equal(t, "w1", lease.Holder)
	assert.NotEmpty(t, lease.Token)

	require.NoError(t, store.Release(ctx, lease))

	again, err := store.Acquire(ctx, "payment:p1", "w2", time.Minute, time.Second)
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, again))
}

func TestLockStore_MutualExclusion(t *testing.T) {
	store, _ := newLockStore(t)
	ctx := context.Background()

	lease, err := store.Acquire(ctx, "k", "w1", time.Minute, time.Second)
	require.NoError(t, err)

	_, err = store.Acquire(ctx, "k", "w2", time.Minute, 50*time.Millisecond)
	assert.ErrorIs(t, err, ports.ErrLockTimeout)

	require.NoError(t, store.Release(ctx, lease))
}

func TestLockStore_ExpiredLeaseIsAbsent(t *testing.T) {
	store, mr := newLockStore(t)
	ctx := context.Background()

	_, err := store.Acquire(ctx, "k", "dead", 100*time.Millisecond, time.Second)
	require.NoError(t, err)

	mr.FastForward(150 * time.Millisecond)

	lease, err := store.Acquire(ctx, "k", "next", time.Minute, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "next", lease.Holder)
}

func TestLockStore_StaleReleaseIsNoop(t *testing.T) {
	store, mr := newLockStore(t)
	ctx := context.Background()

	stale, err := store.Acquire(ctx, "k", "w1", 100*time.Millisecond, time.Second)
	require.NoError(t, err)

	mr.FastForward(150 * time.Millisecond)

	fresh, err := store.Acquire(ctx, "k", "w2", time.Minute, time.Second)
	require.NoError(t, err)

	// The stale holder's release must not free the fresh lease.
	require.NoError(t, store.Release(ctx, stale))
	_, err = store.Acquire(ctx, "k", "w3", time.Minute, 50*time.Millisecond)
	assert.ErrorIs(t, err, ports.ErrLockTimeout)

	require.NoError(t, store.Release(ctx, fresh))
}

func TestLockStore_Renew(t *testing.T) {
	store, mr := newLockStore(t)
	ctx := context.Background()

	lease, err := store.Acquire(ctx, "k", "w1", 200*time.Millisecond, time.Second)
	require.NoError(t, err)

	ok, err := store.Renew(ctx, lease, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// Past the original lease, but the renewal holds.
	mr.FastForward(300 * time.Millisecond)
	_, err = store.Acquire(ctx, "k", "w2", time.Minute, 50*time.Millisecond)
	assert.ErrorIs(t, err, ports.ErrLockTimeout)

	// Renewing an expired/foreign lease reports false.
	require.NoError(t, store.Release(ctx, lease))
	ok, err = store.Renew(ctx, lease, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLockStore_WaiterGetsLockAfterRelease(t *testing.T) {
	store, _ := newLockStore(t)
	ctx := context.Background()

	first, err := store.Acquire(ctx, "k", "w1", time.Minute, time.Second)
	require.NoError(t, err)

	done := make(chan *ports.LockLease, 1)
	go func() {
		lease, err := store.Acquire(ctx, "k", "w2", time.Minute, 2*time.Second)
		require.NoError(t, err)
		done <- lease
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, store.Release(ctx, first))

	select {
	case lease := <-done:
		assert.Equal(t, "w2", lease.Holder)
	case <-time.After(3 * time.Second):
		t.Fatal("waiter never acquired the lock")
	}
}

func TestLockStore_SnapshotTracksLocalState(t *testing.T) {
	store, _ := newLockStore(t)
	ctx := context.Background()

	lease, err := store.Acquire(ctx, "payment:p1", "w1", time.Minute, time.Second)
	require.NoError(t, err)

	go store.Acquire(ctx, "payment:p1", "w2", time.Minute, 500*time.Millisecond) //nolint:errcheck
	time.Sleep(50 * time.Millisecond)

	snap := store.Snapshot()
	require.Contains(t, snap.Holders, "payment:p1")
	assert.Equal(t, "w1", snap.Holders["payment:p1"].Holder)
	require.NotEmpty(t, snap.Waiters["payment:p1"])
	assert.Equal(t, "w2", snap.Waiters["payment:p1"][0].Holder)

	assert.True(t, store.ForceRelease("payment:p1"))
	assert.False(t, store.ForceRelease("payment:p1"))
	_ = lease
}

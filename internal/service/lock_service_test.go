package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"acquiring-gateway/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockService_AcquireRelease(t *testing.T) {
	s := NewMemoryLockService()
	ctx := context.Background()

	lease, err := s.Acquire(ctx, "payment:p1", "w1", time.Minute, time.Second)
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.Equal(t, "payment:p1", lease.Key)
	assert.Equal(t, "w1", lease.Holder)
	assert.NotEmpty(t, lease.Token)

	require.NoError(t, s.Release(ctx, lease))

	// Released key is immediately reacquirable.
	again, err := s.Acquire(ctx, "payment:p1", "w2", time.Minute, time.Second)
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, again))
}

func TestMemoryLockService_MutualExclusion(t *testing.T) {
	s := NewMemoryLockService()
	ctx := context.Background()

	lease, err := s.Acquire(ctx, "k", "w1", time.Minute, 50*time.Millisecond)
	require.NoError(t, err)

	_, err = s.Acquire(ctx, "k", "w2", time.Minute, 50*time.Millisecond)
	require.ErrorIs(t, err, ports.ErrLockTimeout)

	require.NoError(t, s.Release(ctx, lease))
}

func TestMemoryLockService_FIFOFairness(t *testing.T) {
	s := NewMemoryLockService()
	ctx := context.Background()

	first, err := s.Acquire(ctx, "k", "holder", time.Minute, time.Second)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	var wg sync.WaitGroup

	// Enqueue waiters one at a time so arrival order is deterministic.
	for _, name := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			lease, err := s.Acquire(ctx, "k", name, time.Minute, 5*time.Second)
			require.NoError(t, err)
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			require.NoError(t, s.Release(ctx, lease))
		}(name)
		// Give the goroutine time to join the wait queue before the next.
		time.Sleep(50 * time.Millisecond)
	}

	require.NoError(t, s.Release(ctx, first))
	wg.Wait()

	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestMemoryLockService_LeaseExpiryUnblocksWaiter(t *testing.T) {
	s := NewMemoryLockService()
	ctx := context.Background()

	_, err := s.Acquire(ctx, "k", "dead", 40*time.Millisecond, time.Second)
	require.NoError(t, err)

	// The holder never releases; the waiter gets through once the lease expires.
	startedAt := time.Now()
	lease, err := s.Acquire(ctx, "k", "next", time.Minute, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "next", lease.Holder)
	assert.GreaterOrEqual(t, time.Since(startedAt), 30*time.Millisecond)
}

func TestMemoryLockService_ReleaseIdempotent(t *testing.T) {
	s := NewMemoryLockService()
	ctx := context.Background()

	lease, err := s.Acquire(ctx, "k", "w1", time.Minute, time.Second)
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, lease))
	require.NoError(t, s.Release(ctx, lease))
	require.NoError(t, s.Release(ctx, nil))

	// A stale release must not free the next holder's lease.
	next, err := s.Acquire(ctx, "k", "w2", time.Minute, time.Second)
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, lease)) // stale token, no-op
	_, err = s.Acquire(ctx, "k", "w3", time.Minute, 50*time.Millisecond)
	assert.ErrorIs(t, err, ports.ErrLockTimeout)
	require.NoError(t, s.Release(ctx, next))
}

func TestMemoryLockService_ContextCancellation(t *testing.T) {
	s := NewMemoryLockService()
	ctx := context.Background()

	lease, err := s.Acquire(ctx, "k", "w1", time.Minute, time.Second)
	require.NoError(t, err)
	defer s.Release(ctx, lease) //nolint:errcheck

	cancelCtx, cancel := context.WithCancel(ctx)
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err = s.Acquire(cancelCtx, "k", "w2", time.Minute, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryLockService_SnapshotAndForceRelease(t *testing.T) {
	s := NewMemoryLockService()
	ctx := context.Background()

	_, err := s.Acquire(ctx, "payment:p1", "w1", time.Minute, time.Second)
	require.NoError(t, err)

	waiterDone := make(chan *ports.LockLease, 1)
	go func() {
		lease, err := s.Acquire(ctx, "payment:p1", "w2", time.Minute, 5*time.Second)
		require.NoError(t, err)
		waiterDone <- lease
	}()
	time.Sleep(50 * time.Millisecond)

	snap := s.Snapshot()
	require.Contains(t, snap.Holders, "payment:p1")
	assert.Equal(t, "w1", snap.Holders["payment:p1"].Holder)
	require.Len(t, snap.Waiters["payment:p1"], 1)
	assert.Equal(t, "w2", snap.Waiters["payment:p1"][0].Holder)

	// Evicting the holder hands the lease to the queued waiter.
	assert.True(t, s.ForceRelease("payment:p1"))
	lease := <-waiterDone
	assert.Equal(t, "w2", lease.Holder)

	assert.True(t, s.ForceRelease("payment:p1"))
	assert.False(t, s.ForceRelease("payment:p1"), "no live lease left")
	assert.False(t, s.ForceRelease("unknown"))
}

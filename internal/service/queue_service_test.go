package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"acquiring-gateway/config"
	"acquiring-gateway/internal/core/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(capacity, workers, retries int, backoff time.Duration) *QueueService {
	return NewQueueService(config.QueueConfig{
		Capacity:          capacity,
		Workers:           workers,
		ProcessingTimeout: time.Second,
		Retries:           retries,
		BackoffBase:       backoff,
	}, zerolog.Nop())
}

func TestQueueService_ExecutesJobs(t *testing.T) {
	q := newTestQueue(10, 2, 0, time.Millisecond)
	q.Start()
	defer q.Stop()

	var ran atomic.Int32
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		err := q.Enqueue(ports.Job{
			ID:   "job",
			Kind: "test",
			Run: func(ctx context.Context) error {
				if ran.Add(1) == 5 {
					close(done)
				}
				return nil
			},
		})
		require.NoError(t, err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs did not complete")
	}
	assert.Equal(t, int32(5), ran.Load())
}

func TestQueueService_RejectsWhenFull(t *testing.T) {
	q := newTestQueue(2, 1, 0, time.Millisecond)
	// Workers not started: the channel fills up.

	require.NoError(t, q.Enqueue(ports.Job{ID: "1", Run: func(context.Context) error { return nil }}))
	require.NoError(t, q.Enqueue(ports.Job{ID: "2", Run: func(context.Context) error { return nil }}))

	err := q.Enqueue(ports.Job{ID: "3", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ports.ErrQueueFull)
}

func TestQueueService_RetriesWithBackoff(t *testing.T) {
	q := newTestQueue(10, 1, 2, 10*time.Millisecond)
	q.Start()
	defer q.Stop()

	var attempts atomic.Int32
	done := make(chan struct{})
	err := q.Enqueue(ports.Job{
		ID:         "flaky",
		Kind:       "test",
		Idempotent: true,
		Run: func(ctx context.Context) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}
			close(done)
			return nil
		},
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("job never succeeded after retries")
	}
	assert.Equal(t, int32(3), attempts.Load())
}

func TestQueueService_RetryBudgetExhausted(t *testing.T) {
	q := newTestQueue(10, 1, 1, 5*time.Millisecond)
	q.Start()
	defer q.Stop()

	var attempts atomic.Int32
	require.NoError(t, q.Enqueue(ports.Job{
		ID:         "hopeless",
		Idempotent: true,
		Run: func(ctx context.Context) error {
			attempts.Add(1)
			return errors.New("permanent")
		},
	}))

	// 1 initial + 1 retry, then give up.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestQueueService_StopCancelsInFlight(t *testing.T) {
	q := newTestQueue(10, 1, 0, time.Millisecond)
	q.Start()

	started := make(chan struct{})
	observed := make(chan error, 1)
	require.NoError(t, q.Enqueue(ports.Job{
		ID: "long",
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			observed <- ctx.Err()
			return ctx.Err()
		},
	}))

	<-started
	q.Stop()

	select {
	case err := <-observed:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not observe cancellation")
	}

	// Enqueue after stop is refused.
	err := q.Enqueue(ports.Job{ID: "late", Run: func(context.Context) error { return nil }})
	assert.Error(t, err)
}

package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen[job.ID] = true
		return nil
	}, QueueConfig{Workers: 3})
	q.Start(context.Background())
	defer q.Stop()

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.Enqueue(Job{ID: id}))
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 4
	}, time.Second, 5*time.Millisecond)
}

func TestQueueRetriesUntilSuccess(t *testing.T) {
	var calls int32
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, QueueConfig{MaxRetries: 3, RetryDelay: 2 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.TryEnqueue(Job{ID: "job-1"}))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 3 }, time.Second, 5*time.Millisecond)
}

func TestQueueGivesUpAfterRetries(t *testing.T) {
	gaveUp := make(chan Job, 1)
	q := NewQueue("give-up", func(ctx context.Context, job Job) error {
		return errors.New("permanent")
	}, QueueConfig{MaxRetries: 1, RetryDelay: 2 * time.Millisecond, OnGiveUp: func(job Job, err error) {
		gaveUp <- job
	}})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.TryEnqueue(Job{ID: "job-1"}))
	select {
	case job := <-gaveUp:
		assert.Equal(t, "job-1", job.ID)
		assert.Equal(t, 2, job.Attempt)
	case <-time.After(time.Second):
		t.Fatal("job was never given up")
	}
}

func TestQueueRejectsWhenStoppedOrFull(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("full", func(ctx context.Context, job Job) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})

	err := q.TryEnqueue(Job{ID: "early"})
	assert.ErrorIs(t, err, ErrQueueStopped)

	q.Start(context.Background())
	require.NoError(t, q.TryEnqueue(Job{ID: "running"}))
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.TryEnqueue(Job{ID: "buffered"}))
	assert.ErrorIs(t, q.TryEnqueue(Job{ID: "overflow"}), ErrQueueFull)

	close(block)
	q.Stop()
	assert.ErrorIs(t, q.Enqueue(Job{ID: "late"}), ErrQueueStopped)
}

package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/talktrack/internal/core"
	"github.com/markdave123-py/talktrack/internal/logger"
	"github.com/markdave123-py/talktrack/internal/models"
)

func runMemoryConsumer(t *testing.T, q *MemoryQueue, handler core.JobHandler) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Consume(ctx, 2, handler)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = q.Close()
	})
	return cancel
}

func TestMemoryQueue_RetriesTransientFailure(t *testing.T) {
	q := NewMemoryQueue(8, Options{MaxAttempts: 3, Backoff: 10 * time.Millisecond}, logger.NewNop())

	var calls atomic.Int32
	delivered := make(chan models.IngestionJob, 1)
	runMemoryConsumer(t, q, func(_ context.Context, job models.IngestionJob) error {
		if calls.Add(1) == 1 {
			return errors.New("blob store timeout")
		}
		delivered <- job
		return nil
	})

	_, err := q.Enqueue(context.Background(), "f1")
	require.NoError(t, err)

	select {
	case job := <-delivered:
		assert.Equal(t, "f1", job.FileID)
		assert.Equal(t, 1, job.Attempts)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not redelivered")
	}
	assert.Empty(t, q.Failed())
}

func TestMemoryQueue_PermanentFailureIsNotRetried(t *testing.T) {
	q := NewMemoryQueue(8, Options{MaxAttempts: 3, Backoff: 10 * time.Millisecond}, logger.NewNop())

	var calls atomic.Int32
	runMemoryConsumer(t, q, func(context.Context, models.IngestionJob) error {
		calls.Add(1)
		return core.Permanent(errors.New("corrupt file"))
	})

	_, err := q.Enqueue(context.Background(), "f1")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(q.Failed()) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMemoryQueue_ExhaustsAttempts(t *testing.T) {
	q := NewMemoryQueue(8, Options{MaxAttempts: 2, Backoff: 5 * time.Millisecond}, logger.NewNop())

	var calls atomic.Int32
	runMemoryConsumer(t, q, func(context.Context, models.IngestionJob) error {
		calls.Add(1)
		return errors.New("down")
	})

	_, err := q.Enqueue(context.Background(), "f1")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(q.Failed()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, q.Failed()[0].Attempts)
}

func TestMemoryQueue_EnqueueAfterClose(t *testing.T) {
	q := NewMemoryQueue(1, Options{}, logger.NewNop())
	_, err := q.Enqueue(context.Background(), "f1")
	require.NoError(t, err)
	require.NoError(t, q.Close())

	_, err = q.Enqueue(context.Background(), "f2")
	assert.ErrorIs(t, err, core.ErrQueueDisabled)
}

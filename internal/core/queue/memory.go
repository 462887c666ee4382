package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/talktrack/internal/core"
	"github.com/markdave123-py/talktrack/internal/logger"
	"github.com/markdave123-py/talktrack/internal/models"
)

var _ core.JobQueue = (*MemoryQueue)(nil)

// MemoryQueue is a buffered-channel queue for single-process runs. Jobs do
// not survive a restart.
type MemoryQueue struct {
	jobs chan models.IngestionJob
	opts Options
	log  logger.AppLogger

	done      chan struct{}
	closeOnce sync.Once
	timers    sync.WaitGroup

	mu     sync.Mutex
	failed []models.IngestionJob
}

func NewMemoryQueue(capacity int, opts Options, log logger.AppLogger) *MemoryQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &MemoryQueue{
		jobs: make(chan models.IngestionJob, capacity),
		opts: opts.withDefaults(),
		log:  log.With(slog.String("service", "queue"), slog.String("queue", "memory")),
		done: make(chan struct{}),
	}
}

// Enqueue blocks while the buffer is full.
func (q *MemoryQueue) Enqueue(ctx context.Context, fileID string) (models.IngestionJob, error) {
	job := models.IngestionJob{ID: uuid.NewString(), FileID: fileID, EnqueuedAt: time.Now().UTC()}
	select {
	case q.jobs <- job:
		return job, nil
	case <-ctx.Done():
		return models.IngestionJob{}, ctx.Err()
	case <-q.done:
		return models.IngestionJob{}, core.ErrQueueDisabled
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, concurrency int, handler core.JobHandler) error {
	if concurrency <= 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-q.done:
					return nil
				case job := <-q.jobs:
					q.process(gctx, job, handler)
				}
			}
		})
	}
	return g.Wait()
}

func (q *MemoryQueue) process(ctx context.Context, job models.IngestionJob, handler core.JobHandler) {
	err := handler(ctx, job)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		q.redeliver(job, 0)
		return
	}

	job.Attempts++
	job.LastError = err.Error()
	if q.opts.retryable(err, job.Attempts) {
		q.redeliver(job, q.opts.backoffFor(job.Attempts))
		return
	}

	q.mu.Lock()
	q.failed = append(q.failed, job)
	q.mu.Unlock()
	q.log.Warn("job moved to failed",
		slog.String("job_id", job.ID),
		slog.String("file_id", job.FileID),
		slog.Int("attempts", job.Attempts),
	)
}

func (q *MemoryQueue) redeliver(job models.IngestionJob, after time.Duration) {
	q.timers.Add(1)
	go func() {
		defer q.timers.Done()
		t := time.NewTimer(after)
		defer t.Stop()
		select {
		case <-t.C:
		case <-q.done:
			return
		}
		select {
		case q.jobs <- job:
		case <-q.done:
		}
	}()
}

// Failed returns jobs that exhausted their attempts or failed permanently.
func (q *MemoryQueue) Failed() []models.IngestionJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.IngestionJob(nil), q.failed...)
}

// Close stops consumers and pending redeliveries.
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	q.timers.Wait()
	return nil
}

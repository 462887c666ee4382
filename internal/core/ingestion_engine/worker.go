package ingestion_engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/markdave123-py/talktrack/internal/core"
	"github.com/markdave123-py/talktrack/internal/logger"
	"github.com/markdave123-py/talktrack/internal/models"
)

// Worker binds an Ingestor to a job queue with a fixed number of slots.
type Worker struct {
	queue       core.JobQueue
	ingestor    Ingestor
	concurrency int
	log         logger.AppLogger
}

func NewWorker(queue core.JobQueue, ingestor Ingestor, concurrency int, log logger.AppLogger) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Worker{
		queue:       queue,
		ingestor:    ingestor,
		concurrency: concurrency,
		log:         log.With(slog.String("service", "worker")),
	}
}

// Run consumes jobs until ctx is cancelled. A nil queue means the pipeline
// is disabled; Run logs that and returns immediately.
func (w *Worker) Run(ctx context.Context) error {
	if w.queue == nil {
		w.log.Warn("job queue not configured, ingestion worker disabled")
		return nil
	}

	w.log.Info("worker listening", slog.Int("concurrency", w.concurrency))
	err := w.queue.Consume(ctx, w.concurrency, w.handle)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	w.log.Info("worker stopped")
	return err
}

func (w *Worker) handle(ctx context.Context, job models.IngestionJob) error {
	started := time.Now()
	log := w.log.With(
		slog.String("job_id", job.ID),
		slog.String("file_id", job.FileID),
		slog.Int("attempt", job.Attempts+1),
	)
	log.Debug("job started")

	if err := w.ingestor.ProcessOne(ctx, job); err != nil {
		log.Error("job failed", err, slog.Duration("took", time.Since(started)))
		return err
	}
	log.Info("job completed", slog.Duration("took", time.Since(started)))
	return nil
}

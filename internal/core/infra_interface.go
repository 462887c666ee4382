package core

//go:generate mockgen -source=infra_interface.go -destination=infra_interface_mock.go -package=core

import (
	"context"
	"io"

	"github.com/markdave123-py/talktrack/internal/models"
)

// FileStore persists file records and their lifecycle status.
// It abstracts Postgres so the pipeline never depends on a specific DB.
type FileStore interface {
	CreateFile(ctx context.Context, f *models.File) error
	// GetFile returns ErrNotFound when no record exists.
	GetFile(ctx context.Context, id string) (*models.File, error)
	UpdateStatus(ctx context.Context, id string, status models.FileStatus) error
	// MarkProcessing sets PROCESSING together with the duration estimate.
	MarkProcessing(ctx context.Context, id string, durationMinutes float64) error
	Close() error
}

// BlobStore reads and writes raw file bytes by storage path.
type BlobStore interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	// Get returns ErrNotFound when the object does not exist.
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}

// JobHandler processes one dequeued ingestion job.
type JobHandler func(ctx context.Context, job models.IngestionJob) error

// JobQueue is a durable, at-least-once work queue keyed by file id.
type JobQueue interface {
	Enqueue(ctx context.Context, fileID string) (models.IngestionJob, error)
	// Consume blocks, delivering jobs to handler from concurrency slots
	// until ctx is cancelled.
	Consume(ctx context.Context, concurrency int, handler JobHandler) error
	Close() error
}

// VectorIndex stores chunk embeddings in a single shared collection
// multiplexed by the fileId payload field.
type VectorIndex interface {
	// EnsureCollection creates the collection and the fileId keyword index
	// when missing. It never recreates an existing collection.
	EnsureCollection(ctx context.Context) error
	// Upsert writes the whole batch or returns an error.
	Upsert(ctx context.Context, points []models.EmbeddingPoint) error
	DeleteByFile(ctx context.Context, fileID string) error
	Search(ctx context.Context, vector []float32, filter models.Filter, limit int) ([]models.SearchHit, error)
	Close() error
}

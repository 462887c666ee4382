package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/talktrack/internal/core"
	"github.com/markdave123-py/talktrack/internal/core/llm"
	"github.com/markdave123-py/talktrack/internal/logger"
	"github.com/markdave123-py/talktrack/internal/models"
)

// ErrForbidden means the file belongs to another user.
var ErrForbidden = errors.New("file belongs to another user")

const defaultSearchLimit = 5

// FileService is the producer side of the pipeline: it stores uploads,
// records them as PENDING and enqueues ingestion jobs.
type FileService struct {
	files     core.FileStore
	blobs     core.BlobStore
	queue     core.JobQueue // nil when no broker is configured
	extractor core.TextExtractor
	embedder  core.EmbeddingProvider
	index     core.VectorIndex
	log       logger.AppLogger
}

func NewFileService(
	files core.FileStore,
	blobs core.BlobStore,
	queue core.JobQueue,
	extractor core.TextExtractor,
	embedder core.EmbeddingProvider,
	index core.VectorIndex,
	log logger.AppLogger,
) *FileService {
	return &FileService{
		files:     files,
		blobs:     blobs,
		queue:     queue,
		extractor: extractor,
		embedder:  embedder,
		index:     index,
		log:       log.With(slog.String("service", "files")),
	}
}

// QueueEnabled reports whether uploads are handed to the ingestion worker.
func (s *FileService) QueueEnabled() bool {
	return s.queue != nil
}

type UploadInput struct {
	UserID      string
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Upload stores the blob, creates the PENDING record and enqueues the job.
// A disabled or failing queue leaves the file PENDING; the upload still
// succeeds.
func (s *FileService) Upload(ctx context.Context, in UploadInput) (*models.File, error) {
	if in.ContentType == "" {
		in.ContentType = "text/plain"
	}

	fileID := uuid.NewString()
	key := StorageKey(in.UserID, fileID, in.Name)

	uploadCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if err := s.blobs.Put(uploadCtx, key, in.Body, in.ContentType); err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}

	file := &models.File{
		ID:          fileID,
		UserID:      in.UserID,
		Name:        in.Name,
		ContentType: in.ContentType,
		Size:        in.Size,
		StoragePath: key,
		Status:      models.StatusPending,
	}
	if err := s.files.CreateFile(uploadCtx, file); err != nil {
		return nil, fmt.Errorf("create file record: %w", err)
	}

	log := s.log.With(slog.String("file_id", file.ID))
	if s.queue == nil {
		log.Warn("job queue disabled, file will stay PENDING")
		return file, nil
	}
	job, err := s.queue.Enqueue(ctx, file.ID)
	if err != nil {
		log.Error("enqueue ingestion job", err)
		return file, nil
	}
	log.Info("ingestion job enqueued", slog.String("job_id", job.ID))
	return file, nil
}

func (s *FileService) Get(ctx context.Context, id string) (*models.File, error) {
	return s.files.GetFile(ctx, id)
}

func (s *FileService) Status(ctx context.Context, id string) (models.FileStatus, error) {
	f, err := s.files.GetFile(ctx, id)
	if err != nil {
		return "", err
	}
	return f.Status, nil
}

// Transcript returns the decoded text of the stored file.
func (s *FileService) Transcript(ctx context.Context, id string) (string, error) {
	f, err := s.files.GetFile(ctx, id)
	if err != nil {
		return "", err
	}
	data, err := s.blobs.Get(ctx, f.StoragePath)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", f.StoragePath, err)
	}
	return s.extractor.ExtractText(ctx, data, f.ContentType, f.Name)
}

// Reprocess resets a READY or ERROR file to PENDING and enqueues a fresh
// job. Files still waiting or processing are rejected with
// core.ErrInvalidTransition.
func (s *FileService) Reprocess(ctx context.Context, userID, id string) (models.IngestionJob, error) {
	if s.queue == nil {
		return models.IngestionJob{}, core.ErrQueueDisabled
	}

	f, err := s.owned(ctx, userID, id)
	if err != nil {
		return models.IngestionJob{}, err
	}
	if !f.Status.CanTransitionTo(models.StatusPending) {
		return models.IngestionJob{}, fmt.Errorf("file %s in %s: %w", id, f.Status, core.ErrInvalidTransition)
	}
	if err := s.files.UpdateStatus(ctx, id, models.StatusPending); err != nil {
		return models.IngestionJob{}, err
	}

	job, err := s.queue.Enqueue(ctx, id)
	if err != nil {
		return models.IngestionJob{}, fmt.Errorf("enqueue %s: %w", id, err)
	}
	s.log.Info("reprocess requested", slog.String("file_id", id), slog.String("job_id", job.ID))
	return job, nil
}

// Search embeds query and returns the nearest chunks of one file.
func (s *FileService) Search(ctx context.Context, userID, id, query string, limit int) ([]models.SearchHit, error) {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	vecs, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := llm.ValidateEmbeddings(vecs, 1, s.embedder.Dimensions()); err != nil {
		return nil, err
	}
	return s.index.Search(ctx, vecs[0], models.FileFilter(id), limit)
}

func (s *FileService) owned(ctx context.Context, userID, id string) (*models.File, error) {
	f, err := s.files.GetFile(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.UserID != userID {
		return nil, ErrForbidden
	}
	return f, nil
}

// StorageKey lays out blobs as user_uploads/{userId}/{fileId}.{ext}.
func StorageKey(userID, fileID, name string) string {
	ext := strings.TrimPrefix(filepath.Ext(filepath.Base(name)), ".")
	if ext == "" {
		return fmt.Sprintf("user_uploads/%s/%s", userID, fileID)
	}
	return fmt.Sprintf("user_uploads/%s/%s.%s", userID, fileID, strings.ToLower(ext))
}

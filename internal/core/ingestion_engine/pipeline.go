package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/talktrack/internal/core"
	"github.com/markdave123-py/talktrack/internal/core/llm"
	"github.com/markdave123-py/talktrack/internal/logger"
	"github.com/markdave123-py/talktrack/internal/models"
)

var _ Ingestor = (*Pipeline)(nil)

// pointNamespace seeds the UUIDv5 point ids derived from (fileId, chunk index).
var pointNamespace = uuid.MustParse("6f1c1f3e-8d0b-4c4e-9a57-3b1f0a6c2d90")

// PointID returns the deterministic point id of a chunk.
func PointID(fileID string, index int) string {
	return uuid.NewSHA1(pointNamespace, []byte(fileID+":"+strconv.Itoa(index))).String()
}

// Pipeline drives one file from PENDING to READY or ERROR.
type Pipeline struct {
	files     core.FileStore
	blobs     core.BlobStore
	extractor core.TextExtractor
	embedder  core.EmbeddingProvider
	index     core.VectorIndex
	chunker   *Chunker
	cfg       *IngestConfig
	log       logger.AppLogger
}

func NewPipeline(
	files core.FileStore,
	blobs core.BlobStore,
	extractor core.TextExtractor,
	embedder core.EmbeddingProvider,
	index core.VectorIndex,
	cfg *IngestConfig,
	log logger.AppLogger,
) *Pipeline {
	if cfg == nil {
		cfg = DefaultIngestConfig()
	}
	return &Pipeline{
		files:     files,
		blobs:     blobs,
		extractor: extractor,
		embedder:  embedder,
		index:     index,
		chunker:   NewChunker(WithChunkSize(cfg.ChunkSize), WithOverlap(cfg.ChunkOverlap)),
		cfg:       cfg,
		log:       log.With(slog.String("service", "pipeline")),
	}
}

// ProcessOne runs every step for job.FileID. Any failure after the record
// lookup leaves the file in ERROR before the error is returned.
func (p *Pipeline) ProcessOne(ctx context.Context, job models.IngestionJob) error {
	log := p.log.With(slog.String("file_id", job.FileID), slog.String("job_id", job.ID))

	file, err := p.getFile(ctx, job.FileID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.Permanent(err)
		}
		return err
	}

	if err := p.run(ctx, file, log); err != nil {
		p.markError(ctx, file.ID, log, err)
		return err
	}
	return nil
}

func (p *Pipeline) getFile(ctx context.Context, id string) (*models.File, error) {
	sctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()

	f, err := p.files.GetFile(sctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup file %s: %w", id, err)
	}
	return f, nil
}

func (p *Pipeline) run(ctx context.Context, file *models.File, log logger.AppLogger) error {
	started := time.Now()

	data, err := p.download(ctx, file)
	if err != nil {
		return err
	}

	text, err := p.extractor.ExtractText(ctx, data, file.ContentType, file.Name)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return core.Permanent(fmt.Errorf("extract text for %s: %w", file.ID, err))
	}
	duration := EstimateDurationMinutes(text)

	if !file.Status.CanTransitionTo(models.StatusProcessing) {
		return fmt.Errorf("file %s in %s: %w", file.ID, file.Status, core.ErrInvalidTransition)
	}
	if err := p.withStoreTimeout(ctx, func(sctx context.Context) error {
		return p.files.MarkProcessing(sctx, file.ID, duration)
	}); err != nil {
		return fmt.Errorf("mark processing %s: %w", file.ID, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	chunks := p.chunker.Chunks(file.ID, text)
	log.Info("file chunked",
		slog.Int("chunks", len(chunks)),
		slog.Float64("duration_minutes", duration),
	)

	if len(chunks) > 0 {
		if err := p.embedAndIndex(ctx, file, chunks); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.withStoreTimeout(ctx, func(sctx context.Context) error {
		return p.files.UpdateStatus(sctx, file.ID, models.StatusReady)
	}); err != nil {
		return fmt.Errorf("mark ready %s: %w", file.ID, err)
	}

	log.Info("file ready",
		slog.Int("chunks", len(chunks)),
		slog.Duration("took", time.Since(started)),
	)
	return nil
}

func (p *Pipeline) download(ctx context.Context, file *models.File) ([]byte, error) {
	bctx, cancel := context.WithTimeout(ctx, p.cfg.BlobTimeout)
	defer cancel()

	data, err := p.blobs.Get(bctx, file.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", file.StoragePath, err)
	}
	return data, nil
}

func (p *Pipeline) embedAndIndex(ctx context.Context, file *models.File, chunks []models.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	ectx, cancel := context.WithTimeout(ctx, p.cfg.EmbedTimeout)
	vectors, err := p.embedder.EmbedTexts(ectx, texts)
	cancel()
	if err != nil {
		return fmt.Errorf("embed %d chunks of %s: %w", len(texts), file.ID, err)
	}
	if err := llm.ValidateEmbeddings(vectors, len(chunks), p.cfg.EmbedDim); err != nil {
		return fmt.Errorf("file %s: %w", file.ID, err)
	}

	points := make([]models.EmbeddingPoint, len(chunks))
	for i, c := range chunks {
		points[i] = models.EmbeddingPoint{
			ID:      PointID(file.ID, c.Index),
			Vector:  vectors[i],
			Payload: models.NewPointPayload(c, file.StoragePath),
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	ictx, cancel := context.WithTimeout(ctx, p.cfg.IndexTimeout)
	defer cancel()

	// A redelivered job may have indexed more chunks than this run produces.
	if err := p.index.DeleteByFile(ictx, file.ID); err != nil {
		return fmt.Errorf("clear points of %s: %w", file.ID, err)
	}
	if err := p.index.Upsert(ictx, points); err != nil {
		return fmt.Errorf("upsert %d points of %s: %w", len(points), file.ID, err)
	}
	return nil
}

func (p *Pipeline) withStoreTimeout(ctx context.Context, fn func(context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, p.cfg.StoreTimeout)
	defer cancel()
	return fn(sctx)
}

// markError persists ERROR even when ctx is already cancelled.
func (p *Pipeline) markError(ctx context.Context, fileID string, log logger.AppLogger, cause error) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.StoreTimeout)
	defer cancel()

	log.Error("ingestion failed", cause, slog.Bool("permanent", core.IsPermanent(cause)))
	if err := p.files.UpdateStatus(sctx, fileID, models.StatusError); err != nil {
		log.Error("failed to persist ERROR status", err)
	}
}

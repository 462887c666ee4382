package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/markdave123-py/talktrack/internal/config"
	"github.com/markdave123-py/talktrack/internal/core"
	db "github.com/markdave123-py/talktrack/internal/core/database"
	"github.com/markdave123-py/talktrack/internal/core/ingestion_engine"
	"github.com/markdave123-py/talktrack/internal/core/llm"
	objectclient "github.com/markdave123-py/talktrack/internal/core/object-client"
	"github.com/markdave123-py/talktrack/internal/core/queue"
	"github.com/markdave123-py/talktrack/internal/core/vectorindex"
	"github.com/markdave123-py/talktrack/internal/logger"
	"github.com/markdave123-py/talktrack/internal/services"
)

// Deps are the backends the application is assembled from. Queue may be
// nil, which disables the ingestion pipeline.
type Deps struct {
	Files     core.FileStore
	Blobs     core.BlobStore
	Queue     core.JobQueue
	Index     core.VectorIndex
	Embedder  core.EmbeddingProvider
	Extractor core.TextExtractor
}

type App struct {
	cfg  *config.Config
	log  logger.AppLogger
	deps Deps

	Files  *services.FileService
	Worker *ingestion_engine.Worker
	Server *Server
}

// NewApp connects every configured backend and wires the service, the
// worker and the HTTP server on top of them.
func NewApp(ctx context.Context, cfg *config.Config, log logger.AppLogger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	var (
		deps  Deps
		sqlDB *sql.DB
		err   error
	)

	if cfg.DatabaseURL != "" {
		sqlDB, err = db.Open(appCtx, cfg)
		if err != nil {
			return nil, err
		}
		deps.Files = db.NewDatabaseClient(sqlDB)
		log.Info("database initialized and ready")
	} else {
		deps.Files = db.NewMemoryFileStore()
		log.Warn("DATABASE_URL not set, file records are kept in memory")
	}

	closeOnErr := func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}

	deps.Blobs, err = objectclient.NewS3Client(appCtx, cfg)
	if err != nil {
		closeOnErr()
		return nil, err
	}
	log.Info("object client initialized and ready", slog.String("bucket", cfg.BucketName))

	deps.Embedder, err = llm.NewEmbedder(appCtx, cfg)
	if err != nil {
		closeOnErr()
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}
	deps.Extractor = ingestion_engine.NewDocconvExtractor(false)

	deps.Index, err = vectorindex.New(cfg, sqlDB)
	if err != nil {
		closeOnErr()
		return nil, fmt.Errorf("couldn't initialize the vector index, %w", err)
	}
	if err := deps.Index.EnsureCollection(appCtx); err != nil {
		closeOnErr()
		return nil, fmt.Errorf("ensure collection %s: %w", cfg.CollectionName, err)
	}
	log.Info("vector collection ready",
		slog.String("backend", cfg.VectorBackend),
		slog.String("collection", cfg.CollectionName),
		slog.Int("dim", cfg.EmbedDim))

	deps.Queue, err = OpenQueue(appCtx, cfg, log)
	if err != nil {
		closeOnErr()
		return nil, err
	}

	return Assemble(cfg, log, deps), nil
}

// OpenQueue connects the job queue. A missing or malformed broker URL is
// not fatal: it is logged and a nil queue is returned.
func OpenQueue(ctx context.Context, cfg *config.Config, log logger.AppLogger) (core.JobQueue, error) {
	q, err := queue.New(ctx, cfg, log)
	if errors.Is(err, queue.ErrBrokerNotConfigured) {
		log.Warn("job queue disabled, uploads will not be processed", slog.String("reason", err.Error()))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connect job queue: %w", err)
	}
	log.Info("job queue connected", slog.String("backend", cfg.QueueBackend), slog.String("queue", cfg.QueueName))
	return q, nil
}

// Assemble wires already-connected backends together.
func Assemble(cfg *config.Config, log logger.AppLogger, deps Deps) *App {
	if deps.Extractor == nil {
		deps.Extractor = ingestion_engine.NewDocconvExtractor(false)
	}

	pipeline := ingestion_engine.NewPipeline(
		deps.Files, deps.Blobs, deps.Extractor, deps.Embedder, deps.Index,
		ingestion_engine.NewIngestConfig(cfg), log,
	)
	fileService := services.NewFileService(deps.Files, deps.Blobs, deps.Queue, deps.Extractor, deps.Embedder, deps.Index, log)

	return &App{
		cfg:    cfg,
		log:    log,
		deps:   deps,
		Files:  fileService,
		Worker: ingestion_engine.NewWorker(deps.Queue, pipeline, cfg.Concurrency, log),
		Server: NewServer(cfg, fileService, log),
	}
}

// Queue returns the job queue, or nil when the pipeline is disabled.
func (a *App) Queue() core.JobQueue {
	return a.deps.Queue
}

func (a *App) Index() core.VectorIndex {
	return a.deps.Index
}

func (a *App) Close() {
	if a.deps.Queue != nil {
		if err := a.deps.Queue.Close(); err != nil {
			a.log.Error("close job queue", err)
		}
	}
	if a.deps.Index != nil {
		if err := a.deps.Index.Close(); err != nil {
			a.log.Error("close vector index", err)
		}
	}
	if c, ok := a.deps.Embedder.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	// The Postgres file store owns the shared *sql.DB, so it closes last.
	if a.deps.Files != nil {
		if err := a.deps.Files.Close(); err != nil {
			a.log.Error("close database", err)
		}
	}
}

package ingestion_engine

import (
	"time"

	"github.com/markdave123-py/talktrack/internal/config"
)

// WordsPerMinute is the speaking rate used for the duration estimate.
const WordsPerMinute = 150.0

// IngestConfig tunes the per-file pipeline.
//
// ChunkSize / ChunkOverlap: sliding window in runes (1000 / 200).
// EmbedDim:                 dimensionality every embedding must have.
// *Timeout:                 per-call deadlines; exceeding one is retryable.
// Concurrency:              worker slots pulling from the queue.
type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	EmbedDim     int

	BlobTimeout  time.Duration
	EmbedTimeout time.Duration
	IndexTimeout time.Duration
	StoreTimeout time.Duration

	Concurrency int
}

// NewIngestConfig copies the ingestion settings out of cfg. Unset values
// fall back to DefaultIngestConfig.
func NewIngestConfig(cfg *config.Config) *IngestConfig {
	out := DefaultIngestConfig()
	if cfg.ChunkSize > 0 {
		out.ChunkSize = cfg.ChunkSize
		out.ChunkOverlap = cfg.ChunkOverlap
	}
	if cfg.EmbedDim > 0 {
		out.EmbedDim = cfg.EmbedDim
	}
	if cfg.Concurrency > 0 {
		out.Concurrency = cfg.Concurrency
	}
	setDuration(&out.BlobTimeout, cfg.BlobTimeout)
	setDuration(&out.EmbedTimeout, cfg.EmbedTimeout)
	setDuration(&out.IndexTimeout, cfg.IndexTimeout)
	setDuration(&out.StoreTimeout, cfg.StoreTimeout)
	return out
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

// DefaultIngestConfig mirrors the configuration defaults.
func DefaultIngestConfig() *IngestConfig {
	return &IngestConfig{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		EmbedDim:     384,
		BlobTimeout:  30 * time.Second,
		EmbedTimeout: 60 * time.Second,
		IndexTimeout: 30 * time.Second,
		StoreTimeout: 10 * time.Second,
		Concurrency:  10,
	}
}

package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/talktrack/internal/models"
)

// Ingestor runs the ingestion pipeline for one job.
type Ingestor interface {
	ProcessOne(ctx context.Context, job models.IngestionJob) error
}

package vectorindex

import (
	"database/sql"
	"fmt"

	"github.com/markdave123-py/talktrack/internal/config"
	"github.com/markdave123-py/talktrack/internal/core"
)

// New returns the backend named by VECTOR_BACKEND. db is only used by
// pgvector and may be nil otherwise.
func New(cfg *config.Config, db *sql.DB) (core.VectorIndex, error) {
	switch cfg.VectorBackend {
	case "pgvector", "":
		if db == nil {
			return nil, fmt.Errorf("pgvector backend needs a database connection")
		}
		return NewPgVectorIndex(db, cfg.CollectionName, cfg.EmbedDim), nil
	case "qdrant":
		return NewQdrantIndex(QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantTLS,
			Collection: cfg.CollectionName,
			Dim:        cfg.EmbedDim,
		})
	case "memory":
		return NewMemoryIndex(cfg.EmbedDim), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

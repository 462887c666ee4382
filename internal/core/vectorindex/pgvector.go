package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/talktrack/internal/core"
	"github.com/markdave123-py/talktrack/internal/models"
)

var _ core.VectorIndex = (*PgVectorIndex)(nil)

// PgVectorIndex stores a collection as one table with a vector(D) column,
// an HNSW cosine index and a btree index on file_id.
type PgVectorIndex struct {
	db         *sql.DB
	collection string
	table      string
	dim        int
}

func NewPgVectorIndex(db *sql.DB, collection string, dim int) *PgVectorIndex {
	return &PgVectorIndex{
		db:         db,
		collection: collection,
		table:      pgx.Identifier{collection}.Sanitize(),
		dim:        dim,
	}
}

func (p *PgVectorIndex) EnsureCollection(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	var existing int
	err := p.db.QueryRowContext(ctx, `
		SELECT a.atttypmod
		FROM pg_attribute a
		WHERE a.attrelid = to_regclass($1)
		  AND a.attname = 'embedding'
		  AND NOT a.attisdropped
	`, p.table).Scan(&existing)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		q := `CREATE TABLE IF NOT EXISTS ` + p.table + ` (
			id        uuid PRIMARY KEY,
			file_id   text NOT NULL,
			embedding vector(` + strconv.Itoa(p.dim) + `) NOT NULL,
			payload   jsonb NOT NULL DEFAULT '{}'::jsonb
		)`
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create collection %s: %w", p.collection, err)
		}
	case err != nil:
		return fmt.Errorf("inspect collection %s: %w", p.collection, err)
	case existing != p.dim:
		return fmt.Errorf("collection %s has dimension %d, expected %d: %w", p.collection, existing, p.dim, core.ErrDimensionMismatch)
	}

	vecIdx := pgx.Identifier{p.collection + "_embedding_idx"}.Sanitize()
	if _, err := p.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS `+vecIdx+` ON `+p.table+` USING hnsw (embedding vector_cosine_ops)`,
	); err != nil {
		return fmt.Errorf("create vector index: %w", err)
	}

	fileIdx := pgx.Identifier{p.collection + "_file_id_idx"}.Sanitize()
	if _, err := p.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS `+fileIdx+` ON `+p.table+` (file_id)`,
	); err != nil {
		return fmt.Errorf("create fileId index: %w", err)
	}
	return nil
}

// Upsert writes all points in one transaction.
func (p *PgVectorIndex) Upsert(ctx context.Context, points []models.EmbeddingPoint) error {
	if len(points) == 0 {
		return nil
	}
	if err := checkDims(points, p.dim); err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	q := `
		INSERT INTO ` + p.table + ` (id, file_id, embedding, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET file_id = EXCLUDED.file_id, embedding = EXCLUDED.embedding, payload = EXCLUDED.payload
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, pt := range points {
		payload, err := json.Marshal(pt.Payload)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("marshal payload of %s: %w", pt.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, pt.ID, pt.FileID(), pgvector.NewVector(pt.Vector), payload); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert point %s: %w", pt.ID, err)
		}
	}
	return tx.Commit()
}

func (p *PgVectorIndex) DeleteByFile(ctx context.Context, fileID string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM `+p.table+` WHERE file_id = $1`, fileID); err != nil {
		return fmt.Errorf("delete points of %s: %w", fileID, err)
	}
	return nil
}

// Search ranks by cosine distance; score is 1 - distance.
func (p *PgVectorIndex) Search(ctx context.Context, vector []float32, filter models.Filter, limit int) ([]models.SearchHit, error) {
	if len(vector) != p.dim {
		return nil, fmt.Errorf("%w: query has dimension %d, expected %d", core.ErrDimensionMismatch, len(vector), p.dim)
	}
	if limit <= 0 {
		limit = 10
	}

	args := []any{pgvector.NewVector(vector)}
	where, args := filterSQL(filter, args)

	q := `
		SELECT id, payload, 1 - (embedding <=> $1) AS score
		FROM ` + p.table + where + `
		ORDER BY embedding <=> $1
		LIMIT ` + strconv.Itoa(limit)

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", p.collection, err)
	}
	defer rows.Close()

	var out []models.SearchHit
	for rows.Next() {
		var (
			hit     models.SearchHit
			payload []byte
			score   float64
		)
		if err := rows.Scan(&hit.ID, &payload, &score); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &hit.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", hit.ID, err)
		}
		hit.Score = float32(score)
		out = append(out, hit)
	}
	return out, rows.Err()
}

// filterSQL renders filter as a WHERE clause. fileId uses the indexed
// column; other keys read the jsonb payload.
func filterSQL(filter models.Filter, args []any) (string, []any) {
	if len(filter.Must) == 0 {
		return "", args
	}
	clauses := make([]string, 0, len(filter.Must))
	for _, cond := range filter.Must {
		if cond.Key == models.PayloadFileID {
			args = append(args, cond.Match.Any)
			clauses = append(clauses, fmt.Sprintf("file_id = ANY($%d)", len(args)))
			continue
		}
		args = append(args, cond.Key, cond.Match.Any)
		clauses = append(clauses, fmt.Sprintf("payload->>$%d = ANY($%d)", len(args)-1, len(args)))
	}
	return "\n\t\tWHERE " + strings.Join(clauses, " AND "), args
}

// Close is a no-op; the shared *sql.DB is closed by its owner.
func (p *PgVectorIndex) Close() error { return nil }

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/talktrack/internal/config"
	"github.com/markdave123-py/talktrack/internal/core"
	"github.com/markdave123-py/talktrack/internal/models"
)

var _ core.FileStore = (*DatabaseClient)(nil)

// Open connects to Postgres, tunes the pool and applies the bootstrap schema.
// The returned handle is shared by the file store and the pgvector index.
func Open(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn, err := withSSL(cfg.DatabaseURL, cfg.SslCertPath)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return db, nil
}

// withSSL appends verify-ca parameters when a root certificate is configured.
func withSSL(databaseURL, certPath string) (string, error) {
	if certPath == "" {
		return databaseURL, nil
	}
	if _, err := os.Stat(certPath); err != nil {
		return "", fmt.Errorf("ssl cert not accessible at %q: %w", certPath, err)
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	q := u.Query()
	q.Set("sslmode", "verify-ca")
	q.Set("sslrootcert", certPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DatabaseClient is the Postgres-backed file status store.
type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(db *sql.DB) *DatabaseClient {
	return &DatabaseClient{db: db}
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *DatabaseClient) CreateFile(ctx context.Context, f *models.File) error {
	if f == nil {
		return errors.New("nil file")
	}
	if f.Status == "" {
		f.Status = models.StatusPending
	}
	const q = `
		INSERT INTO files
			(id, user_id, name, content_type, size, storage_path, status, duration_minutes, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING created_at, updated_at
	`
	err := c.db.QueryRowContext(ctx, q,
		f.ID, f.UserID, f.Name, f.ContentType, f.Size, f.StoragePath, string(f.Status), f.DurationMinutes,
	).Scan(&f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert file %s: %w", f.ID, err)
	}
	return nil
}

func (c *DatabaseClient) GetFile(ctx context.Context, id string) (*models.File, error) {
	const q = `
		SELECT id, user_id, name, content_type, size, storage_path, status, duration_minutes, created_at, updated_at
		FROM files
		WHERE id = $1
	`
	var (
		f      models.File
		status string
	)
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&f.ID, &f.UserID, &f.Name, &f.ContentType, &f.Size, &f.StoragePath, &status, &f.DurationMinutes, &f.CreatedAt, &f.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get file %s: %w", id, err)
	}
	f.Status = models.FileStatus(status)
	return &f, nil
}

// UpdateStatus writes status only when the stored status may move to it,
// so a stale writer cannot overwrite a newer state.
func (c *DatabaseClient) UpdateStatus(ctx context.Context, id string, status models.FileStatus) error {
	q, args := transitionQuery("status = $2, updated_at = now()", status, id, string(status))
	return c.execTransition(ctx, id, status, q, args...)
}

func (c *DatabaseClient) MarkProcessing(ctx context.Context, id string, durationMinutes float64) error {
	q, args := transitionQuery("status = $2, duration_minutes = $3, updated_at = now()",
		models.StatusProcessing, id, string(models.StatusProcessing), durationMinutes)
	return c.execTransition(ctx, id, models.StatusProcessing, q, args...)
}

// transitionQuery appends a status IN (...) guard listing the allowed
// predecessors of next after the given args.
func transitionQuery(set string, next models.FileStatus, args ...any) (string, []any) {
	from := models.AllowedFrom(next)
	placeholders := make([]string, len(from))
	for i, s := range from {
		args = append(args, string(s))
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	q := fmt.Sprintf(`
		UPDATE files
		SET %s
		WHERE id = $1 AND status IN (%s)
	`, set, strings.Join(placeholders, ", "))
	return q, args
}

func (c *DatabaseClient) execTransition(ctx context.Context, id string, next models.FileStatus, q string, args ...any) error {
	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update file %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	var current string
	err = c.db.QueryRowContext(ctx, `SELECT status FROM files WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("file %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("get file %s: %w", id, err)
	}
	return fmt.Errorf("file %s %s -> %s: %w", id, current, next, core.ErrInvalidTransition)
}

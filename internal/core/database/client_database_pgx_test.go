package db

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/talktrack/internal/core"
	"github.com/markdave123-py/talktrack/internal/models"
)

func newMockClient(t *testing.T) (*DatabaseClient, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewDatabaseClient(sqlDB), mock
}

func TestDatabaseClient_CreateFile(t *testing.T) {
	client, mock := newMockClient(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO files")).
		WithArgs("f1", "u1", "talk.txt", "text/plain", int64(12), "user_uploads/u1/f1.txt", "PENDING", 0.0).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	f := &models.File{
		ID: "f1", UserID: "u1", Name: "talk.txt", ContentType: "text/plain",
		Size: 12, StoragePath: "user_uploads/u1/f1.txt",
	}
	require.NoError(t, client.CreateFile(context.Background(), f))

	assert.Equal(t, models.StatusPending, f.Status)
	assert.Equal(t, now, f.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseClient_GetFile(t *testing.T) {
	client, mock := newMockClient(t)
	now := time.Now().UTC()

	cols := []string{"id", "user_id", "name", "content_type", "size", "storage_path", "status", "duration_minutes", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM files")).
		WithArgs("f1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("f1", "u1", "talk.txt", "text/plain", int64(12), "k", "READY", 2.5, now, now))

	f, err := client.GetFile(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, f.Status)
	assert.InDelta(t, 2.5, f.DurationMinutes, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseClient_GetFile_NotFound(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM files")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := client.GetFile(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestDatabaseClient_UpdateStatus(t *testing.T) {
	client, mock := newMockClient(t)
	guard := regexp.QuoteMeta("WHERE id = $1 AND status IN ($3, $4, $5)")
	current := regexp.QuoteMeta("SELECT status FROM files WHERE id = $1")

	mock.ExpectExec(guard).
		WithArgs("f1", "ERROR", "PENDING", "PROCESSING", "ERROR").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status IN ($3)")).
		WithArgs("gone", "READY", "PROCESSING").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(current).WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	require.NoError(t, client.UpdateStatus(context.Background(), "f1", models.StatusError))

	err := client.UpdateStatus(context.Background(), "gone", models.StatusReady)
	assert.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseClient_UpdateStatusRejectsStaleWrite(t *testing.T) {
	client, mock := newMockClient(t)

	// A reprocess request while the file is still being processed.
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND status IN ($3, $4)")).
		WithArgs("f1", "PENDING", "READY", "ERROR").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM files WHERE id = $1")).WithArgs("f1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PROCESSING"))

	err := client.UpdateStatus(context.Background(), "f1", models.StatusPending)

	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabaseClient_MarkProcessing(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectExec(regexp.QuoteMeta("SET status = $2, duration_minutes = $3")).
		WithArgs("f1", "PROCESSING", 1.5, "PENDING", "PROCESSING", "READY", "ERROR").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, client.MarkProcessing(context.Background(), "f1", 1.5))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithSSL(t *testing.T) {
	dsn, err := withSSL("postgres://u:p@localhost:5432/db", "")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/db", dsn)

	_, err = withSSL("postgres://u:p@localhost:5432/db", "/does/not/exist.crt")
	assert.Error(t, err)
}

func TestMemoryFileStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryFileStore()

	require.NoError(t, s.CreateFile(ctx, &models.File{ID: "f1"}))
	assert.Error(t, s.CreateFile(ctx, &models.File{ID: "f1"}))

	require.NoError(t, s.MarkProcessing(ctx, "f1", 3))
	require.NoError(t, s.UpdateStatus(ctx, "f1", models.StatusReady))

	f, err := s.GetFile(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, f.Status)
	assert.InDelta(t, 3.0, f.DurationMinutes, 1e-9)
	assert.Equal(t, []models.FileStatus{models.StatusPending, models.StatusProcessing, models.StatusReady}, s.History("f1"))

	_, err = s.GetFile(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.UpdateStatus(ctx, "nope", models.StatusError), core.ErrNotFound)

	// READY cannot be overwritten by a stale ERROR, and PROCESSING cannot be
	// rewound to PENDING.
	assert.ErrorIs(t, s.UpdateStatus(ctx, "f1", models.StatusError), core.ErrInvalidTransition)
	require.NoError(t, s.MarkProcessing(ctx, "f1", 3))
	assert.ErrorIs(t, s.UpdateStatus(ctx, "f1", models.StatusPending), core.ErrInvalidTransition)
	f, err = s.GetFile(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, f.Status)
}

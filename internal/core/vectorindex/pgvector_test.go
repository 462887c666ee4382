package vectorindex

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/talktrack/internal/core"
	"github.com/markdave123-py/talktrack/internal/models"
)

// passthrough lets slice arguments reach the mock the way pgx accepts them.
type passthrough struct{}

func (passthrough) ConvertValue(v any) (driver.Value, error) {
	if vr, ok := v.(driver.Valuer); ok {
		return vr.Value()
	}
	return v, nil
}

func newMockIndex(t *testing.T, dim int) (*PgVectorIndex, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passthrough{}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPgVectorIndex(db, "document-embeddings-hf", dim), mock
}

func TestPgVectorIndex_EnsureCollection_Creates(t *testing.T) {
	idx, mock := newMockIndex(t, 384)

	mock.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION IF NOT EXISTS vector")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM pg_attribute")).
		WithArgs(`"document-embeddings-hf"`).
		WillReturnRows(sqlmock.NewRows([]string{"atttypmod"}))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "document-embeddings-hf"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`USING hnsw (embedding vector_cosine_ops)`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`"document-embeddings-hf_file_id_idx"`)).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, idx.EnsureCollection(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorIndex_EnsureCollection_ExistingKeepsTable(t *testing.T) {
	idx, mock := newMockIndex(t, 384)

	mock.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM pg_attribute")).
		WillReturnRows(sqlmock.NewRows([]string{"atttypmod"}).AddRow(384))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS")).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, idx.EnsureCollection(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorIndex_EnsureCollection_DimensionDrift(t *testing.T) {
	idx, mock := newMockIndex(t, 384)

	mock.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM pg_attribute")).
		WillReturnRows(sqlmock.NewRows([]string{"atttypmod"}).AddRow(768))

	err := idx.EnsureCollection(context.Background())
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorIndex_Upsert(t *testing.T) {
	idx, mock := newMockIndex(t, 2)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("ON CONFLICT (id) DO UPDATE"))
	prep.ExpectExec().WithArgs("p1", "A", sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("p2", "A", sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := idx.Upsert(context.Background(), []models.EmbeddingPoint{point("p1", "A", 1, 0), point("p2", "A", 0, 1)})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorIndex_UpsertRejectsWrongDimensionBeforeWriting(t *testing.T) {
	idx, mock := newMockIndex(t, 3)

	err := idx.Upsert(context.Background(), []models.EmbeddingPoint{point("p1", "A", 1, 0)})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorIndex_Search(t *testing.T) {
	idx, mock := newMockIndex(t, 2)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE file_id = ANY($2)")).
		WithArgs(sqlmock.AnyArg(), []string{"A"}).
		WillReturnRows(sqlmock.NewRows([]string{"id", "payload", "score"}).
			AddRow("p1", []byte(`{"fileId":"A","content":"hello","loc":{"pageNumber":1}}`), 0.98))

	hits, err := idx.Search(context.Background(), []float32{1, 0}, models.FileFilter("A"), 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "p1", hits[0].ID)
	assert.InDelta(t, 0.98, hits[0].Score, 1e-6)
	assert.Equal(t, "A", hits[0].Payload[models.PayloadFileID])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorIndex_DeleteByFile(t *testing.T) {
	idx, mock := newMockIndex(t, 2)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "document-embeddings-hf" WHERE file_id = $1`)).
		WithArgs("A").
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, idx.DeleteByFile(context.Background(), "A"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFilterSQL(t *testing.T) {
	where, args := filterSQL(models.Filter{Must: []models.FieldCondition{
		{Key: models.PayloadFileID, Match: models.Match{Any: []string{"A"}}},
		{Key: "source", Match: models.Match{Any: []string{"s"}}},
	}}, []any{"vec"})

	assert.Contains(t, where, "file_id = ANY($2)")
	assert.Contains(t, where, "payload->>$3 = ANY($4)")
	assert.Len(t, args, 4)

	where, args = filterSQL(models.Filter{}, []any{"vec"})
	assert.Empty(t, where)
	assert.Len(t, args, 1)
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	middleware "github.com/markdave123-py/talktrack/internal/api/middlewares"
	"github.com/markdave123-py/talktrack/internal/core"
	db "github.com/markdave123-py/talktrack/internal/core/database"
	"github.com/markdave123-py/talktrack/internal/core/ingestion_engine"
	"github.com/markdave123-py/talktrack/internal/core/vectorindex"
	"github.com/markdave123-py/talktrack/internal/logger"
	"github.com/markdave123-py/talktrack/internal/models"
	"github.com/markdave123-py/talktrack/internal/services"
)

type handlerFixture struct {
	files *db.MemoryFileStore
	blobs *core.MockBlobStore
	queue *core.MockJobQueue
	emb   *core.MockEmbeddingProvider
	index *vectorindex.MemoryIndex
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	ctrl := gomock.NewController(t)
	return &handlerFixture{
		files: db.NewMemoryFileStore(),
		blobs: core.NewMockBlobStore(ctrl),
		queue: core.NewMockJobQueue(ctrl),
		emb:   core.NewMockEmbeddingProvider(ctrl),
		index: vectorindex.NewMemoryIndex(2),
	}
}

// router mounts the handler the same way the server does, with a fixed
// user injected in place of the JWT check.
func (f *handlerFixture) router(withQueue bool, maxUploadMB int) http.Handler {
	var q core.JobQueue
	if withQueue {
		q = f.queue
	}
	svc := services.NewFileService(f.files, f.blobs, q, ingestion_engine.NewDocconvExtractor(false), f.emb, f.index, logger.NewNop())
	h := NewFileHandler(svc, maxUploadMB, logger.NewNop())

	r := chi.NewRouter()
	r.Get("/api/fileStatus", h.FileStatus)
	r.Get("/api/files/{id}/transcript", h.Transcript)
	r.Group(func(p chi.Router) {
		p.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if id := r.Header.Get("X-Test-User"); id != "" {
					r = r.WithContext(middleware.WithUserID(r.Context(), id))
				}
				next.ServeHTTP(w, r)
			})
		})
		p.Post("/api/upload", h.Upload)
		p.Post("/api/files/{id}/reprocess", h.Reprocess)
		p.Post("/api/files/{id}/search", h.Search)
	})
	return r
}

func (f *handlerFixture) seed(t *testing.T, id, user string, status models.FileStatus) {
	require.NoError(t, f.files.CreateFile(context.Background(), &models.File{
		ID:          id,
		UserID:      user,
		Name:        "talk.txt",
		ContentType: "text/plain",
		StoragePath: "user_uploads/" + user + "/" + id + ".txt",
		Status:      status,
	}))
}

func multipartBody(t *testing.T, name string, content []byte) (*bytes.Buffer, string) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestFileHandler_Upload(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.blobs.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, path string, body io.Reader, _ string) error {
			data, err := io.ReadAll(body)
			require.NoError(t, err)
			assert.Equal(t, "hello world", string(data))
			assert.True(t, strings.HasSuffix(path, ".txt"))
			return nil
		})
	fx.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(models.IngestionJob{ID: "j1"}, nil)

	body, ctype := multipartBody(t, "talk.txt", []byte("hello world"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("X-Test-User", "u1")
	rec := httptest.NewRecorder()

	fx.router(true, 10).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, true, out["success"])
	file := out["file"].(map[string]any)
	assert.Equal(t, "PENDING", file["status"])
	assert.Equal(t, "u1", file["user_id"])
	assert.Equal(t, "talk.txt", file["name"])
}

func TestFileHandler_UploadSucceedsWithoutQueue(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.blobs.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	body, ctype := multipartBody(t, "talk.vtt", []byte("WEBVTT"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ctype)
	req.Header.Set("X-Test-User", "u1")
	rec := httptest.NewRecorder()

	fx.router(false, 10).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "PENDING", decode(t, rec)["file"].(map[string]any)["status"])
}

func TestFileHandler_UploadRejects(t *testing.T) {
	t.Run("no user", func(t *testing.T) {
		fx := newHandlerFixture(t)
		body, ctype := multipartBody(t, "talk.txt", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set("Content-Type", ctype)
		rec := httptest.NewRecorder()

		fx.router(true, 10).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing file field", func(t *testing.T) {
		fx := newHandlerFixture(t)
		buf := &bytes.Buffer{}
		mw := multipart.NewWriter(buf)
		require.NoError(t, mw.WriteField("note", "no file"))
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/upload", buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("X-Test-User", "u1")
		rec := httptest.NewRecorder()

		fx.router(true, 10).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "No File Uploaded", decode(t, rec)["error"])
	})

	t.Run("too large", func(t *testing.T) {
		fx := newHandlerFixture(t)
		body, ctype := multipartBody(t, "big.txt", bytes.Repeat([]byte("a"), 2<<20))
		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set("Content-Type", ctype)
		req.Header.Set("X-Test-User", "u1")
		rec := httptest.NewRecorder()

		fx.router(true, 1).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})

	t.Run("blob store down", func(t *testing.T) {
		fx := newHandlerFixture(t)
		fx.blobs.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("s3 down"))
		body, ctype := multipartBody(t, "talk.txt", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
		req.Header.Set("Content-Type", ctype)
		req.Header.Set("X-Test-User", "u1")
		rec := httptest.NewRecorder()

		fx.router(true, 10).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to upload", decode(t, rec)["error"])
	})
}

func TestFileHandler_FileStatus(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.seed(t, "f1", "u1", models.StatusReady)
	h := fx.router(true, 10)

	cases := []struct {
		name   string
		query  string
		code   int
		status string
	}{
		{"found", "?fileId=f1", http.StatusOK, "READY"},
		{"missing id", "", http.StatusBadRequest, ""},
		{"unknown", "?fileId=nope", http.StatusNotFound, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/fileStatus"+tc.query, nil))

			assert.Equal(t, tc.code, rec.Code)
			out := decode(t, rec)
			if tc.status != "" {
				assert.Equal(t, tc.status, out["status"])
			} else {
				assert.NotEmpty(t, out["error"])
			}
		})
	}
}

func TestFileHandler_Transcript(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.seed(t, "f1", "u1", models.StatusReady)
	fx.blobs.EXPECT().Get(gomock.Any(), "user_uploads/u1/f1.txt").Return([]byte("the transcript"), nil)

	rec := httptest.NewRecorder()
	fx.router(true, 10).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files/f1/transcript", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "the transcript", decode(t, rec)["transcript"])
}

func TestFileHandler_Reprocess(t *testing.T) {
	t.Run("queued", func(t *testing.T) {
		fx := newHandlerFixture(t)
		fx.seed(t, "f1", "u1", models.StatusError)
		fx.queue.EXPECT().Enqueue(gomock.Any(), "f1").Return(models.IngestionJob{ID: "j2", FileID: "f1"}, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/files/f1/reprocess", nil)
		req.Header.Set("X-Test-User", "u1")
		rec := httptest.NewRecorder()

		fx.router(true, 10).ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code)
		f, err := fx.files.GetFile(context.Background(), "f1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, f.Status)
	})

	t.Run("other user", func(t *testing.T) {
		fx := newHandlerFixture(t)
		fx.seed(t, "f1", "u1", models.StatusError)
		req := httptest.NewRequest(http.MethodPost, "/api/files/f1/reprocess", nil)
		req.Header.Set("X-Test-User", "u2")
		rec := httptest.NewRecorder()

		fx.router(true, 10).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("still processing", func(t *testing.T) {
		fx := newHandlerFixture(t)
		fx.seed(t, "f1", "u1", models.StatusProcessing)
		req := httptest.NewRequest(http.MethodPost, "/api/files/f1/reprocess", nil)
		req.Header.Set("X-Test-User", "u1")
		rec := httptest.NewRecorder()

		fx.router(true, 10).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		f, err := fx.files.GetFile(context.Background(), "f1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusProcessing, f.Status)
	})

	t.Run("queue disabled", func(t *testing.T) {
		fx := newHandlerFixture(t)
		fx.seed(t, "f1", "u1", models.StatusError)
		req := httptest.NewRequest(http.MethodPost, "/api/files/f1/reprocess", nil)
		req.Header.Set("X-Test-User", "u1")
		rec := httptest.NewRecorder()

		fx.router(false, 10).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestFileHandler_Search(t *testing.T) {
	fx := newHandlerFixture(t)
	fx.seed(t, "f1", "u1", models.StatusReady)
	require.NoError(t, fx.index.Upsert(context.Background(), []models.EmbeddingPoint{
		{ID: "p1", Vector: []float32{1, 0}, Payload: map[string]any{models.PayloadFileID: "f1", models.PayloadContent: "near"}},
		{ID: "p2", Vector: []float32{0, 1}, Payload: map[string]any{models.PayloadFileID: "f1", models.PayloadContent: "far"}},
		{ID: "p3", Vector: []float32{1, 0}, Payload: map[string]any{models.PayloadFileID: "f2", models.PayloadContent: "other"}},
	}))
	fx.emb.EXPECT().EmbedTexts(gomock.Any(), []string{"budget"}).Return([][]float32{{1, 0}}, nil)
	fx.emb.EXPECT().Dimensions().Return(2)

	req := httptest.NewRequest(http.MethodPost, "/api/files/f1/search", strings.NewReader(`{"query":"budget","limit":1}`))
	req.Header.Set("X-Test-User", "u1")
	rec := httptest.NewRecorder()

	fx.router(true, 10).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	results := decode(t, rec)["results"].([]any)
	require.Len(t, results, 1)
	hit := results[0].(map[string]any)
	assert.Equal(t, "p1", hit["id"])
	assert.Equal(t, "near", hit["payload"].(map[string]any)[models.PayloadContent])
}

func TestFileHandler_SearchBadBody(t *testing.T) {
	fx := newHandlerFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/files/f1/search", strings.NewReader(`{"limit":1}`))
	req.Header.Set("X-Test-User", "u1")
	rec := httptest.NewRecorder()

	fx.router(true, 10).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	for _, tc := range []struct {
		enabled bool
		worker  string
	}{{true, "listening"}, {false, "disabled"}} {
		rec := httptest.NewRecorder()
		NewHealthHandler(tc.enabled).Health(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		out := decode(t, rec)
		assert.Equal(t, "ok", out["status"])
		assert.Equal(t, tc.worker, out["worker"])
		assert.NotEmpty(t, out["timestamp"])
	}
}

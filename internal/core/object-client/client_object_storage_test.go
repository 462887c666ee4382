package objectclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/talktrack/internal/core"
)

// fakeS3 serves path-style object requests from an in-memory map.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/")
	switch r.Method {
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		_, _ = io.WriteString(w, body)
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		f.objects[key] = string(data)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, objects map[string]string) (*S3Client, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: objects}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	api := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("key", "secret", ""),
	})
	return NewS3ClientFromAPI(api, "uploads", 5*time.Second), fake
}

func TestS3Client_Get(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{"uploads/user_uploads/u1/f1.txt": "hello there"})

	data, err := client.Get(context.Background(), "user_uploads/u1/f1.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello there", string(data))
}

func TestS3Client_Get_NotFound(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{})

	_, err := client.Get(context.Background(), "user_uploads/u1/missing.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.True(t, core.IsPermanent(err))
}

func TestS3Client_Delete(t *testing.T) {
	client, fake := newTestClient(t, map[string]string{"uploads/a.txt": "x"})

	require.NoError(t, client.Delete(context.Background(), "a.txt"))
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.NotContains(t, fake.objects, "uploads/a.txt")
}

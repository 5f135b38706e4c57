package s3blob_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sagarc03/cellar"
	"github.com/sagarc03/cellar/s3blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBucket = "test-bucket"

// fakeS3 serves the handful of path style S3 calls the store makes.
type fakeS3 struct {
	mu            sync.Mutex
	objects       map[string][]byte
	bucketCreated bool
}

func newFakeS3(t *testing.T) (*fakeS3, *httptest.Server) {
	t.Helper()
	f := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if bucket != testBucket {
		http.Error(w, "unknown bucket", http.StatusBadRequest)
		return
	}

	if key == "" {
		switch r.Method {
		case http.MethodHead:
			if !f.bucketCreated {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			f.bucketCreated = true
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	switch r.Method {
	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.objects[key] = body
		w.Header().Set("ETag", `"fake"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+
				`<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(body)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) object(key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	return b, ok
}

func newStore(t *testing.T, srv *httptest.Server, prefix string) *s3blob.Store {
	t.Helper()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "credentials"))

	store, err := s3blob.New(context.Background(), s3blob.Config{
		Bucket:          testBucket,
		Endpoint:        srv.URL,
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		UsePathStyle:    true,
		Prefix:          prefix,
		CreateBucket:    true,
	})
	require.NoError(t, err)
	return store
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := s3blob.New(context.Background(), s3blob.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket name is required")
}

func TestNew_CreatesBucket(t *testing.T) {
	fake, srv := newFakeS3(t)
	newStore(t, srv, "")

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.True(t, fake.bucketCreated)
}

func TestStore_WriteGetDelete(t *testing.T) {
	fake, srv := newFakeS3(t)
	store := newStore(t, srv, "")
	ctx := context.Background()
	key := "3f/a2/3fa2c0ffee"

	result, err := store.Write(ctx, key, strings.NewReader("test content"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), result.BytesWritten)
	assert.Equal(t, "6ae8a75555209fd6c44157c0aed8016e763ff435a19cf186f76863140143ff72", result.Etag)

	stored, ok := fake.object(key)
	require.True(t, ok)
	assert.Equal(t, "test content", string(stored))

	rc, err := store.Get(ctx, key)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "test content", string(got))

	require.NoError(t, store.Delete(ctx, key))
	_, ok = fake.object(key)
	assert.False(t, ok)

	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, cellar.ErrNotFound)
}

func TestStore_Prefix(t *testing.T) {
	fake, srv := newFakeS3(t)
	store := newStore(t, srv, "/cellar/")

	_, err := store.Write(context.Background(), "aa/bb/aabb", strings.NewReader("x"))
	require.NoError(t, err)

	_, ok := fake.object("cellar/aa/bb/aabb")
	assert.True(t, ok)
}

func TestStore_ContextCanceled(t *testing.T) {
	_, srv := newFakeS3(t)
	store := newStore(t, srv, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Write(ctx, "aa/bb/aabb", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, store.Delete(ctx, "aa/bb/aabb"), context.Canceled)
}

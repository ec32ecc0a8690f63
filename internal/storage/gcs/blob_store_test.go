package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

func newTestStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "digests"})
	require.NoError(t, err)
	return store
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	body := []byte("<html>3 new construction awards</html>")
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/digests/o")
		assert.Equal(t, "2024-01-31/c.html", r.URL.Query().Get("name"))
		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(raw), string(body))
		assert.Contains(t, string(raw), "text/html")
		fmt.Fprintln(w, `{"name":"2024-01-31/c.html","bucket":"digests"}`)
	})
	store := newTestStore(t, handler)

	uri, err := store.PutObject(context.Background(), "2024-01-31/c.html", "text/html; charset=utf-8", body)
	require.NoError(t, err)
	require.Equal(t, "gs://digests/2024-01-31/c.html", uri)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	_, err := store.PutObject(context.Background(), "x.html", "text/html", []byte("x"))
	require.Error(t, err)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.NotFoundHandler())
	_, err := store.PutObject(context.Background(), " ", "text/html", nil)
	require.ErrorContains(t, err, "path is required")
}

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func stubClient(status int) *http.Client {
	return &http.Client{Transport: roundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader(`{"name":"digests"}`)),
			Header:     make(http.Header),
			Request:    r,
		}, nil
	})}
}

func TestOpenChecksBucket(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), Config{Bucket: "digests"}, zap.NewNop(),
		option.WithoutAuthentication(), option.WithHTTPClient(stubClient(http.StatusOK)))
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestOpenFailsOnMissingBucket(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{Bucket: "digests"}, zap.NewNop(),
		option.WithoutAuthentication(), option.WithHTTPClient(stubClient(http.StatusNotFound)))
	require.ErrorContains(t, err, "failed to get GCS bucket")

	_, err = Open(context.Background(), Config{}, nil)
	require.ErrorContains(t, err, "bucket name is required")
}

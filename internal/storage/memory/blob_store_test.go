package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "digests/2024-01-31/c.html", "text/html", payload)
	require.NoError(t, err)
	require.Equal(t, "memory://digests/2024-01-31/c.html", uri)

	payload[0] = 'C'
	stored, contentType, ok := store.Object("digests/2024-01-31/c.html")
	require.True(t, ok)
	require.Equal(t, "content", string(stored))
	require.Equal(t, "text/html", contentType)
	require.Equal(t, 1, store.Len())
}

func TestBlobStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().PutObject(context.Background(), "", "text/html", nil)
	require.Error(t, err)
}

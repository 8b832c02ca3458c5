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
	uri, err := store.PutObject(context.Background(), "snapshots/src-1/abc.html", "text/html", payload)
	require.NoError(t, err)
	require.Equal(t, "memory://snapshots/src-1/abc.html", uri)

	payload[0] = 'C'
	snap, ok := store.Snapshot("snapshots/src-1/abc.html")
	require.True(t, ok)
	require.Equal(t, "content", string(snap.Data))
	require.Equal(t, "text/html", snap.ContentType)
}

func TestBlobStoreIsWriteOnce(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	_, err := store.PutObject(context.Background(), "s/a.html", "text/html", []byte("first"))
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "s/a.html", "text/plain", []byte("second"))
	require.NoError(t, err)

	data, ok := store.Object("s/a.html")
	require.True(t, ok)
	require.Equal(t, "first", string(data))
	require.Equal(t, 1, store.Len())
}

func TestBlobStoreRejectsBadInput(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, p := range []string{"", "/abs.html", "../up.html", "a/../b.html", "a//b.html"} {
		_, err := store.PutObject(context.Background(), p, "text/html", nil)
		require.Error(t, err, p)
	}
	_, err := store.PutObject(context.Background(), "a.html", "", nil)
	require.Error(t, err)
	require.Zero(t, store.Len())
}

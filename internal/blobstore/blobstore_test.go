package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_PutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMem()

	require.NoError(t, store.Put(ctx, "doc1", "text/markdown", []byte("# Title\n\nBody.")))

	data, meta, err := store.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nBody.", string(data))
	assert.Equal(t, "doc1", meta.DocID)
	assert.Equal(t, "text/markdown", meta.ContentType)
	assert.Equal(t, int64(len(data)), meta.Size)
}

func TestMemStore_GetMissingIsErrNotFound(t *testing.T) {
	_, _, err := NewMem().Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemStore_PutIsolatesCallerBuffer(t *testing.T) {
	ctx := context.Background()
	store := NewMem()
	buf := []byte("original")
	require.NoError(t, store.Put(ctx, "doc1", "", buf))
	buf[0] = 'X'

	data, _, err := store.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))
}

func TestMemStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMem()
	require.NoError(t, store.Put(ctx, "doc1", "", []byte("x")))
	require.NoError(t, store.Delete(ctx, "doc1"))
	require.NoError(t, store.Delete(ctx, "doc1"))

	ok, err := store.Exists(ctx, "doc1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemStore_ListSortedByDocID(t *testing.T) {
	ctx := context.Background()
	store := NewMem()
	require.NoError(t, store.Put(ctx, "b", "", []byte("2")))
	require.NoError(t, store.Put(ctx, "a", "", []byte("1")))

	metas, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "a", metas[0].DocID)
	assert.Equal(t, "b", metas[1].DocID)
}

package blobstore

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts backend reads.
type countingStore struct {
	*MemoryStore
	mu    sync.Mutex
	reads int
}

func (c *countingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := c.MemoryStore.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &countingBlob{Blob: b, store: c}, nil
}

type countingBlob struct {
	Blob
	store *countingStore
}

func (b *countingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	b.store.mu.Lock()
	b.store.reads++
	b.store.mu.Unlock()
	return b.Blob.ReadAt(ctx, p, off)
}

func (c *countingStore) readCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}

func makeData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func TestCachingStore_ReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{MemoryStore: NewMemoryStore()}
	data := makeData(1000)
	require.NoError(t, inner.Put(ctx, "blob", data))

	store := NewCachingStore(inner, 1<<20, 100, nil)

	b, err := store.Open(ctx, "blob")
	require.NoError(t, err)
	defer b.Close()

	buf := make([]byte, 250)
	n, err := b.ReadAt(ctx, buf, 120)
	require.NoError(t, err)
	assert.Equal(t, 250, n)
	assert.Equal(t, data[120:370], buf)
	assert.Equal(t, 1, inner.readCount(), "adjacent missing blocks are read at once")

	n, err = b.ReadAt(ctx, buf, 150)
	require.NoError(t, err)
	assert.Equal(t, 250, n)
	assert.Equal(t, data[150:400], buf)
	assert.Equal(t, 1, inner.readCount(), "second read is served from the cache")
	assert.Positive(t, store.Stats().Hits)
}

func TestCachingStore_ReadPastEnd(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryStore()
	data := makeData(150)
	require.NoError(t, inner.Put(ctx, "blob", data))

	store := NewCachingStore(inner, 1<<20, 100, nil)
	b, err := store.Open(ctx, "blob")
	require.NoError(t, err)

	buf := make([]byte, 100)
	n, err := b.ReadAt(ctx, buf, 100)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 50, n)
	assert.Equal(t, data[100:], buf[:n])

	_, err = b.ReadAt(ctx, buf, 150)
	assert.ErrorIs(t, err, io.EOF)

	got, err := ReadAll(ctx, store, "blob")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCachingStore_PutInvalidates(t *testing.T) {
	ctx := context.Background()
	store := NewCachingStore(NewMemoryStore(), 1<<20, 4, nil)

	require.NoError(t, store.Put(ctx, "blob", []byte("old value")))
	got, err := ReadAll(ctx, store, "blob")
	require.NoError(t, err)
	assert.Equal(t, "old value", string(got))

	require.NoError(t, store.Put(ctx, "blob", []byte("new value")))
	got, err = ReadAll(ctx, store, "blob")
	require.NoError(t, err)
	assert.Equal(t, "new value", string(got))

	require.NoError(t, store.Delete(ctx, "blob"))
	_, err = store.Open(ctx, "blob")
	assert.ErrorIs(t, err, ErrNotFound)
}

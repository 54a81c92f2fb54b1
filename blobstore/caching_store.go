package blobstore

import (
	"context"
	"errors"
	"io"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/segstore/internal/cache"
	"github.com/hupe1980/segstore/internal/resource"
)

// DefaultBlockSize is the block size of a CachingStore.
const DefaultBlockSize = 64 << 10

type blockKey struct {
	name  string
	block int64
}

func hashBlockKey(k blockKey) uint64 {
	return xxhash.Sum64String(k.name) ^ uint64(k.block)*0x9e3779b97f4a7c15
}

// CachingStore wraps a BlobStore and adds block-level read caching. Blobs are
// immutable once written, so cached blocks are only invalidated by Put and
// Delete through the same CachingStore.
type CachingStore struct {
	inner     BlobStore
	blocks    *cache.Sharded[blockKey, []byte]
	blockSize int64
}

// NewCachingStore creates a new CachingStore caching up to capacity bytes.
// blockSize defaults to DefaultBlockSize if <= 0. rc is optional.
func NewCachingStore(inner BlobStore, capacity, blockSize int64, rc *resource.Controller) *CachingStore {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &CachingStore{
		inner: inner,
		blocks: cache.NewSharded[blockKey, []byte](capacity, 0, hashBlockKey,
			func(_ blockKey, b []byte) int64 { return int64(len(b)) }, rc),
		blockSize: blockSize,
	}
}

// Open implements BlobStore.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &cachingBlob{inner: b, store: s, name: name}, nil
}

// Put implements BlobStore.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.invalidate(name)
	return s.inner.Put(ctx, name, data)
}

// Delete implements BlobStore.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.invalidate(name)
	return s.inner.Delete(ctx, name)
}

// List implements BlobStore.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

// Stats returns the block cache counters.
func (s *CachingStore) Stats() cache.Stats {
	return s.blocks.Stats()
}

func (s *CachingStore) invalidate(name string) {
	s.blocks.Invalidate(func(k blockKey) bool { return k.name == name })
}

// cachingBlob reads through the block cache of its store.
type cachingBlob struct {
	inner Blob
	store *CachingStore
	name  string
}

func (b *cachingBlob) Close() error {
	return b.inner.Close()
}

func (b *cachingBlob) Size() int64 {
	return b.inner.Size()
}

func (b *cachingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	size := b.Size()
	if off >= size {
		return 0, io.EOF
	}

	bs := b.store.blockSize
	end := min(off+int64(len(p)), size)
	startBlock := off / bs
	endBlock := (end - 1) / bs

	if err := b.fill(ctx, startBlock, endBlock); err != nil {
		return 0, err
	}

	total := 0
	for blk := startBlock; blk <= endBlock; blk++ {
		data, err := b.block(ctx, blk)
		if err != nil {
			return total, err
		}
		blkStart := blk * bs
		from := max(blkStart, off)
		to := min(blkStart+int64(len(data)), end)
		if to <= from {
			break
		}
		total += copy(p[from-off:], data[from-blkStart:to-blkStart])
	}
	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

// fill loads the missing blocks of [startBlock, endBlock], coalescing runs of
// adjacent missing blocks into single reads.
func (b *cachingBlob) fill(ctx context.Context, startBlock, endBlock int64) error {
	type run struct{ start, count int64 }
	var runs []run
	for blk := startBlock; blk <= endBlock; blk++ {
		if b.store.blocks.Contains(blockKey{name: b.name, block: blk}) {
			continue
		}
		if n := len(runs); n > 0 && runs[n-1].start+runs[n-1].count == blk {
			runs[n-1].count++
			continue
		}
		runs = append(runs, run{start: blk, count: 1})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)
	for _, r := range runs {
		g.Go(func() error {
			return b.load(gctx, r.start, r.count)
		})
	}
	return g.Wait()
}

func (b *cachingBlob) load(ctx context.Context, start, count int64) error {
	bs := b.store.blockSize
	off := start * bs
	length := min(count*bs, b.Size()-off)
	if length <= 0 {
		return nil
	}

	buf := make([]byte, length)
	n, err := b.inner.ReadAt(ctx, buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	buf = buf[:n]

	for i := int64(0); i < count && i*bs < int64(len(buf)); i++ {
		chunk := buf[i*bs : min((i+1)*bs, int64(len(buf)))]
		// Copy so a cached block does not pin the whole run.
		b.store.blocks.Set(blockKey{name: b.name, block: start + i}, append([]byte(nil), chunk...))
	}
	return nil
}

// block returns block blk from the cache, reading it if it was evicted
// since fill.
func (b *cachingBlob) block(ctx context.Context, blk int64) ([]byte, error) {
	key := blockKey{name: b.name, block: blk}
	if data, ok := b.store.blocks.Get(key); ok {
		return data, nil
	}

	bs := b.store.blockSize
	length := min(bs, b.Size()-blk*bs)
	buf := make([]byte, length)
	n, err := b.inner.ReadAt(ctx, buf, blk*bs)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	buf = buf[:n]
	if n > 0 {
		b.store.blocks.Set(key, buf)
	}
	return buf, nil
}

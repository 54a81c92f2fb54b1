package segstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segstore/blobstore"
	"github.com/hupe1980/segstore/internal/archive"
	segfs "github.com/hupe1980/segstore/internal/fs"
	"github.com/hupe1980/segstore/internal/manifest"
	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/revisions"
	"github.com/hupe1980/segstore/segment"
)

var g1 = model.GCGeneration{Generation: 1, FullGeneration: 1}

// scenario is a small tree: B references A, A references the bulk segment C
// and holds the inline blob id "blob-42".
type scenario struct {
	a, b, c model.SegmentID
	data    map[model.SegmentID][]byte
	order   []model.SegmentID
}

func newScenario(t *testing.T) scenario {
	t.Helper()
	s := scenario{
		a:    model.NewDataSegmentID(),
		b:    model.NewDataSegmentID(),
		c:    model.NewBulkSegmentID(),
		data: make(map[model.SegmentID][]byte),
	}

	ab := segment.NewBuilder(g1)
	ab.Reference(s.c)
	_, err := ab.WriteInlineBlobID("blob-42")
	require.NoError(t, err)

	bb := segment.NewBuilder(g1)
	bb.Reference(s.a)
	_, err = bb.WriteString("root")
	require.NoError(t, err)

	s.data[s.c] = []byte("raw binary content, blob-99")
	s.data[s.a] = ab.Build()
	s.data[s.b] = bb.Build()
	s.order = []model.SegmentID{s.c, s.a, s.b}
	return s
}

func (sc scenario) write(t *testing.T, s *Store) {
	t.Helper()
	for _, id := range sc.order {
		require.NoError(t, s.WriteSegment(id, sc.data[id]))
	}
}

func (sc scenario) assertIndexes(t *testing.T, s *Store) {
	t.Helper()
	assert.Equal(t, map[model.SegmentID][]model.SegmentID{
		sc.a: {sc.c},
		sc.b: {sc.a},
	}, s.SegmentGraph())
	assert.Equal(t, map[archive.RefKey][]string{
		{Generation: g1, Segment: sc.a}: {"blob-42"},
	}, binaryReferences(s))
}

func binaryReferences(s *Store) map[archive.RefKey][]string {
	refs := make(map[archive.RefKey][]string)
	s.BinaryReferences(func(gen model.GCGeneration, id model.SegmentID, blobID string) {
		k := archive.RefKey{Generation: gen, Segment: id}
		refs[k] = append(refs[k], blobID)
	})
	return refs
}

func openStore(t *testing.T, dir string, opts ...Option) *Store {
	t.Helper()
	s, err := Open(dir, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// crashCopy copies the store directory as it would be found after a crash:
// the active archive file has no footer.
func crashCopy(t *testing.T, s *Store) string {
	t.Helper()
	require.NoError(t, s.Flush())

	dst := t.TempDir()
	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		copyFile(t, filepath.Join(s.Dir(), e.Name()), filepath.Join(dst, e.Name()))
	}
	return dst
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	in, err := os.Open(src)
	require.NoError(t, err)
	defer in.Close()
	out, err := os.Create(dst)
	require.NoError(t, err)
	_, err = io.Copy(out, in)
	require.NoError(t, err)
	require.NoError(t, out.Close())
}

func TestOpen_NewStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "repo")
	s := openStore(t, dir)

	assert.Equal(t, manifest.MaxStoreVersion, s.StoreVersion())
	assert.Empty(t, s.SegmentIDs())
	assert.Empty(t, s.SegmentGraph())

	_, err := os.Stat(filepath.Join(dir, manifest.FileName))
	require.NoError(t, err)
}

func TestStore_WriteAndRead(t *testing.T) {
	sc := newScenario(t)
	s := openStore(t, t.TempDir())
	sc.write(t, s)

	seg, err := s.ReadSegment(sc.b)
	require.NoError(t, err)
	assert.Equal(t, sc.b, seg.ID())
	assert.Equal(t, g1, seg.GCGeneration())
	assert.Equal(t, []model.SegmentID{sc.a}, seg.References())

	uncached, err := s.ReadSegmentUncached(sc.b)
	require.NoError(t, err)
	assert.Equal(t, seg.Data(), uncached.Data())

	assert.ElementsMatch(t, sc.order, s.SegmentIDs())
	assert.True(t, s.ContainsSegment(sc.a))
	sc.assertIndexes(t, s)
	assert.ElementsMatch(t, []model.SegmentID{sc.b, sc.a, sc.c}, s.ReachableSegments(sc.b))
}

func TestStore_ReopenKeepsIndexes(t *testing.T) {
	sc := newScenario(t)
	dir := t.TempDir()

	s, err := Open(dir, WithCompression(CompressionZSTD))
	require.NoError(t, err)
	sc.write(t, s)
	require.NoError(t, s.Close())

	s = openStore(t, dir, WithMemoryMapping(true))
	sc.assertIndexes(t, s)
	for _, id := range sc.order {
		seg, err := s.ReadSegment(id)
		require.NoError(t, err)
		assert.Equal(t, sc.data[id], seg.Data())
	}
	for _, f := range s.Files() {
		assert.True(t, f.Sealed)
	}
}

func TestStore_BulkSegments(t *testing.T) {
	s := openStore(t, t.TempDir())
	bulk := model.NewBulkSegmentID()
	raw := []byte("opaque bytes that are not a segment")

	require.NoError(t, s.WriteSegment(bulk, raw))

	seg, err := s.ReadSegment(bulk)
	require.NoError(t, err)
	assert.Equal(t, raw, seg.Data())
	assert.Equal(t, model.NullGeneration, seg.GCGeneration())
	assert.Zero(t, s.SegmentCacheStats().Count, "bulk segments are not cached")
	assert.Empty(t, s.SegmentGraph())
}

func TestStore_WriteSelfReference(t *testing.T) {
	self, other, entries := selfReferencing(t)
	dir := t.TempDir()

	s := openStore(t, dir)
	for _, e := range entries {
		require.NoError(t, s.WriteSegment(e.ID, e.Data))
	}
	assert.ElementsMatch(t, []model.SegmentID{self, other}, s.SegmentGraph()[self])
	require.NoError(t, s.Close())

	r := openStore(t, dir, WithReadOnly(true))
	assert.ElementsMatch(t, []model.SegmentID{self, other}, r.SegmentGraph()[self])
}

func TestStore_SegmentNotFound(t *testing.T) {
	s := openStore(t, t.TempDir())
	missing := model.NewDataSegmentID()

	_, err := s.ReadSegment(missing)
	require.ErrorIs(t, err, ErrSegmentNotFound)

	var nf *SegmentNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, missing, nf.ID)
	assert.Contains(t, err.Error(), missing.String())
}

func TestStore_WriteRejectsMalformed(t *testing.T) {
	s := openStore(t, t.TempDir())
	id := model.NewDataSegmentID()

	err := s.WriteSegment(id, []byte("not a segment"))
	require.ErrorIs(t, err, ErrMalformedSegment)

	var me *MalformedSegmentError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, id, me.ID)
	assert.False(t, s.ContainsSegment(id))
}

func TestStore_ReadOnly(t *testing.T) {
	sc := newScenario(t)
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)
	sc.write(t, s)
	require.NoError(t, s.Close())

	ro := openStore(t, dir, WithReadOnly(true))
	sc.assertIndexes(t, ro)
	assert.ErrorIs(t, ro.WriteSegment(model.NewDataSegmentID(), sc.data[sc.b]), ErrReadOnly)
}

func TestStore_ReadOnlyNeedsRecovery(t *testing.T) {
	sc := newScenario(t)
	s := openStore(t, t.TempDir())
	sc.write(t, s)
	dir := crashCopy(t, s)

	_, err := Open(dir, WithReadOnly(true))
	assert.ErrorIs(t, err, ErrReadOnly)
}

func TestOpen_VersionGate(t *testing.T) {
	t.Run("DataWithoutManifest", func(t *testing.T) {
		sc := newScenario(t)
		dir := t.TempDir()
		s, err := Open(dir)
		require.NoError(t, err)
		sc.write(t, s)
		require.NoError(t, s.Close())
		require.NoError(t, os.Remove(filepath.Join(dir, manifest.FileName)))

		_, err = Open(dir)
		require.ErrorIs(t, err, ErrIncompatibleVersion)
		var ive *IncompatibleVersionError
		require.ErrorAs(t, err, &ive)
		assert.Equal(t, 0, ive.Version)
	})

	t.Run("StrictRejectsOldVersion", func(t *testing.T) {
		dir := t.TempDir()
		m := manifest.New()
		m.StoreVersion = manifest.MinStoreVersion
		require.NoError(t, manifest.Save(segfs.Default, dir, m))

		_, err := Open(dir, WithStrictVersionCheck(true))
		require.ErrorIs(t, err, ErrIncompatibleVersion)

		s := openStore(t, dir)
		assert.Equal(t, manifest.MaxStoreVersion, s.StoreVersion(), "accepted versions are upgraded")
	})

	t.Run("NewerVersion", func(t *testing.T) {
		dir := t.TempDir()
		m := manifest.New()
		m.StoreVersion = manifest.MaxStoreVersion + 1
		require.NoError(t, manifest.Save(segfs.Default, dir, m))

		_, err := Open(dir)
		require.ErrorIs(t, err, ErrIncompatibleVersion)
	})
}

func TestStore_ReadStringAndTemplate(t *testing.T) {
	s := openStore(t, t.TempDir())
	id := model.NewDataSegmentID()

	b := segment.NewBuilder(g1)
	str, err := b.WriteString("hello")
	require.NoError(t, err)
	tpl, err := b.WriteTemplate(&segment.Template{PrimaryType: "nt:unstructured", Properties: []string{"title"}})
	require.NoError(t, err)
	require.NoError(t, s.WriteSegment(id, b.Build()))

	for range 3 {
		v, err := s.ReadString(model.RecordID{Segment: id, Number: str})
		require.NoError(t, err)
		assert.Equal(t, "hello", v)
	}
	assert.Equal(t, int64(2), s.StringCacheStats().Hits)

	got, err := s.ReadTemplate(model.RecordID{Segment: id, Number: tpl})
	require.NoError(t, err)
	assert.Equal(t, "nt:unstructured", got.PrimaryType)
	assert.Equal(t, int64(1), s.TemplateCacheStats().Misses)
}

func TestStore_Head(t *testing.T) {
	ctx := context.Background()
	sc := newScenario(t)

	s := openStore(t, t.TempDir())
	_, _, err := s.Head(ctx)
	assert.ErrorIs(t, err, ErrNoRevisions)

	s = openStore(t, t.TempDir(), WithRevisions(revisions.NewMemory()))
	sc.write(t, s)

	_, err = s.SetHead(ctx, model.RecordID{}, model.RecordID{Segment: model.NewDataSegmentID()})
	assert.ErrorIs(t, err, ErrSegmentNotFound)

	head := model.RecordID{Segment: sc.b, Number: 1}
	ok, err := s.SetHead(ctx, model.RecordID{}, head)
	require.NoError(t, err)
	assert.True(t, ok)

	got, ok, err := s.Head(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, head, got)
}

func TestStore_ReadBlob(t *testing.T) {
	ctx := context.Background()

	s := openStore(t, t.TempDir())
	_, err := s.ReadBlob(ctx, "blob-42")
	assert.ErrorIs(t, err, ErrNoBlobStore)

	bs := blobstore.NewMemoryStore()
	require.NoError(t, bs.Put(ctx, "blob-42", []byte("binary")))
	s = openStore(t, t.TempDir(), WithBlobStore(bs))

	data, err := s.ReadBlob(ctx, "blob-42")
	require.NoError(t, err)
	assert.Equal(t, "binary", string(data))

	_, err = s.ReadBlob(ctx, "missing")
	assert.True(t, errors.Is(err, blobstore.ErrNotFound))
}

func TestStore_Close(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.ReadSegment(model.NewDataSegmentID())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.WriteSegment(model.NewDataSegmentID(), nil), ErrClosed)
	assert.ErrorIs(t, s.CollectBlobReferences(context.Background(), func(string) {}), ErrClosed)
}

func TestStore_Rotation(t *testing.T) {
	s := openStore(t, t.TempDir(), WithMaxFileSize(256))
	for range 20 {
		b := segment.NewBuilder(g1)
		_, err := b.WriteString("some payload to fill the archive")
		require.NoError(t, err)
		require.NoError(t, s.WriteSegment(model.NewDataSegmentID(), b.Build()))
	}
	assert.Greater(t, len(s.Files()), 1)
	assert.Len(t, s.SegmentIDs(), 20)
}

func TestStore_Metrics(t *testing.T) {
	sc := newScenario(t)
	mc := &BasicMetricsCollector{}
	s := openStore(t, t.TempDir(), WithMetricsCollector(mc), WithLogger(NewTextLogger(0)))
	sc.write(t, s)

	_, err := s.ReadSegment(sc.a)
	require.NoError(t, err)
	_, err = s.ReadSegment(model.NewDataSegmentID())
	require.Error(t, err)

	stats := mc.GetStats()
	assert.Equal(t, int64(3), stats.WriteCount)
	assert.Equal(t, int64(2), stats.ReadCount)
	assert.Equal(t, int64(1), stats.ReadErrors)
	assert.InDelta(t, 0.5, stats.ReadHitRate, 1e-9)
}

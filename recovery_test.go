package segstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segstore/internal/archive"
	segfs "github.com/hupe1980/segstore/internal/fs"
	"github.com/hupe1980/segstore/internal/manifest"
	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/segment"
)

// writeUnsealed creates a store directory holding a manifest and one archive
// file with entries but no footer.
func writeUnsealed(t *testing.T, entries ...archive.Entry) string {
	t.Helper()
	scratch := filepath.Join(t.TempDir(), archive.FileName(0))
	w, err := archive.Create(nil, scratch, archive.Options{})
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, w.WriteEntry(e.ID, e.Generation, e.Data))
	}
	require.NoError(t, w.Flush())

	dir := t.TempDir()
	copyFile(t, scratch, filepath.Join(dir, archive.FileName(0)))
	require.NoError(t, w.Close())
	require.NoError(t, manifest.Save(segfs.Default, dir, manifest.New()))
	return dir
}

func TestRecovery_CrashCopy(t *testing.T) {
	sc := newScenario(t)
	bulk := model.NewBulkSegmentID()

	s := openStore(t, t.TempDir())
	sc.write(t, s)
	require.NoError(t, s.WriteSegment(bulk, []byte("raw")))
	dir := crashCopy(t, s)

	mc := &BasicMetricsCollector{}
	r := openStore(t, dir, WithMetricsCollector(mc))
	sc.assertIndexes(t, r)
	assert.Empty(t, r.QuarantinedEntries())
	for _, f := range r.Files() {
		assert.True(t, f.Sealed, f.Name)
	}

	for _, id := range sc.order {
		seg, err := r.ReadSegment(id)
		require.NoError(t, err)
		assert.Equal(t, sc.data[id], seg.Data())
	}
	raw, err := r.ReadSegment(bulk)
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), raw.Data())

	stats := mc.GetStats()
	assert.Equal(t, int64(4), stats.RecoveredEntries)
	assert.Equal(t, int64(2), stats.RecoveredBulk)

	// Recovered data segments are installed in the cache, bulk ones are not.
	assert.Equal(t, int64(2), r.SegmentCacheStats().Count)
}

func TestRecovery_SealedAfterReopen(t *testing.T) {
	sc := newScenario(t)
	s := openStore(t, t.TempDir())
	sc.write(t, s)
	dir := crashCopy(t, s)

	r, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = os.Stat(filepath.Join(dir, archive.FileName(0)+".bak"))
	assert.True(t, os.IsNotExist(err))

	again := openStore(t, dir)
	sc.assertIndexes(t, again)
}

func TestRecovery_Idempotent(t *testing.T) {
	sc := newScenario(t)
	s := openStore(t, t.TempDir())
	sc.write(t, s)
	dir := crashCopy(t, s)

	// The same entries replayed twice from two unsealed files.
	copyFile(t, filepath.Join(dir, archive.FileName(0)), filepath.Join(dir, archive.FileName(1)))

	r := openStore(t, dir)
	sc.assertIndexes(t, r)
	assert.Len(t, r.Files(), 2)
}

func TestRecovery_TornTail(t *testing.T) {
	sc := newScenario(t)
	s := openStore(t, t.TempDir())
	sc.write(t, s)
	dir := crashCopy(t, s)

	f, err := os.OpenFile(filepath.Join(dir, archive.FileName(0)), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x01, 0x02, 0x03, 0x04, 0x05})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r := openStore(t, dir)
	sc.assertIndexes(t, r)
	assert.Len(t, r.SegmentIDs(), 3)
}

func TestRecovery_ResolvesBlobIDsWithinPass(t *testing.T) {
	value := model.NewDataSegmentID()
	holder := model.NewDataSegmentID()

	vb := segment.NewBuilder(g1)
	n, err := vb.WriteString("blob-by-ref")
	require.NoError(t, err)

	hb := segment.NewBuilder(g1)
	hb.WriteBlobIDReference(holder, model.RecordID{Segment: value, Number: n})

	dir := writeUnsealed(t,
		archive.Entry{ID: value, Generation: g1, Data: vb.Build()},
		archive.Entry{ID: holder, Generation: g1, Data: hb.Build()},
	)

	r := openStore(t, dir)
	assert.Equal(t, map[archive.RefKey][]string{
		{Generation: g1, Segment: holder}: {"blob-by-ref"},
	}, binaryReferences(r))
	assert.Equal(t, map[model.SegmentID][]model.SegmentID{holder: {value}}, r.SegmentGraph())
}

func malformedEntries(t *testing.T) (good, bad, parent model.SegmentID, entries []archive.Entry) {
	t.Helper()
	good = model.NewDataSegmentID()
	bad = model.NewDataSegmentID()
	parent = model.NewDataSegmentID()

	gb := segment.NewBuilder(g1)
	_, err := gb.WriteString("fine")
	require.NoError(t, err)

	pb := segment.NewBuilder(g1)
	pb.Reference(good)
	_, err = pb.WriteInlineBlobID("blob-1")
	require.NoError(t, err)

	entries = []archive.Entry{
		{ID: good, Generation: g1, Data: gb.Build()},
		{ID: bad, Generation: g1, Data: []byte("definitely not a segment")},
		{ID: parent, Generation: g1, Data: pb.Build()},
	}
	return good, bad, parent, entries
}

func TestRecovery_AbortOnMalformed(t *testing.T) {
	_, bad, _, entries := malformedEntries(t)
	dir := writeUnsealed(t, entries...)

	_, err := Open(dir)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrMalformedSegment)

	var rerr *RecoveryError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, bad, rerr.ID)
	assert.Equal(t, KindMalformed, rerr.Kind)

	// The source file is restored, so recovery can be retried.
	_, err = os.Stat(filepath.Join(dir, archive.FileName(0)))
	require.NoError(t, err)
	r := openStore(t, dir, WithRecoveryPolicy(RecoveryQuarantine))
	assert.Len(t, r.QuarantinedEntries(), 1)
}

func TestRecovery_Quarantine(t *testing.T) {
	good, bad, parent, entries := malformedEntries(t)
	dir := writeUnsealed(t, entries...)

	mc := &BasicMetricsCollector{}
	r := openStore(t, dir, WithRecoveryPolicy(RecoveryQuarantine), WithMetricsCollector(mc))

	q := r.QuarantinedEntries()
	require.Len(t, q, 1)
	assert.Equal(t, bad, q[0].ID)
	assert.Equal(t, KindMalformed, q[0].Kind)
	assert.Equal(t, int64(1), mc.GetStats().QuarantinedEntries)

	// The raw bytes are kept but contribute nothing to the indexes.
	assert.True(t, r.ContainsSegment(bad))
	_, err := r.ReadSegment(bad)
	assert.ErrorIs(t, err, ErrMalformedSegment)

	assert.Equal(t, map[model.SegmentID][]model.SegmentID{parent: {good}}, r.SegmentGraph())
	assert.Equal(t, map[archive.RefKey][]string{
		{Generation: g1, Segment: parent}: {"blob-1"},
	}, binaryReferences(r))
	assert.Equal(t, int64(2), r.SegmentCacheStats().Count)
}

func TestRecovery_QuarantineSurvivesReopen(t *testing.T) {
	good, bad, parent, entries := malformedEntries(t)
	dir := writeUnsealed(t, entries...)

	r := openStore(t, dir, WithRecoveryPolicy(RecoveryQuarantine))
	require.Len(t, r.QuarantinedEntries(), 1)
	require.NoError(t, r.Close())

	r = openStore(t, dir)
	q := r.QuarantinedEntries()
	require.Len(t, q, 1)
	assert.Equal(t, bad, q[0].ID)
	assert.Equal(t, KindMalformed, q[0].Kind)
	assert.ErrorIs(t, q[0], ErrMalformedSegment)

	assert.Equal(t, map[model.SegmentID][]model.SegmentID{parent: {good}}, r.SegmentGraph())
	assert.Equal(t, []string{"blob-1"}, collect(t, r))
}

func TestRecovery_MissingReferencedSegment(t *testing.T) {
	holder := model.NewDataSegmentID()
	missing := model.NewDataSegmentID()

	hb := segment.NewBuilder(g1)
	hb.WriteBlobIDReference(holder, model.RecordID{Segment: missing, Number: 0})
	dir := writeUnsealed(t, archive.Entry{ID: holder, Generation: g1, Data: hb.Build()})

	_, err := Open(dir)
	var rerr *RecoveryError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, holder, rerr.ID)
	assert.Equal(t, KindNotFound, rerr.Kind)
	assert.ErrorIs(t, err, ErrSegmentNotFound)
}

// selfReferencing returns a data segment whose referenced-id table lists the
// segment itself and a bulk segment.
func selfReferencing(t *testing.T) (self, other model.SegmentID, entries []archive.Entry) {
	t.Helper()
	self = model.NewDataSegmentID()
	other = model.NewBulkSegmentID()

	b := segment.NewBuilder(g1)
	b.Reference(self)
	b.Reference(other)
	_, err := b.WriteString("loop")
	require.NoError(t, err)

	seg, err := segment.Decode(self, b.Build())
	require.NoError(t, err)
	require.Equal(t, []model.SegmentID{self, other}, seg.References())

	return self, other, []archive.Entry{
		{ID: other, Generation: model.NullGeneration, Data: []byte("raw")},
		{ID: self, Generation: g1, Data: seg.Data()},
	}
}

func TestRecovery_SelfReference(t *testing.T) {
	self, other, entries := selfReferencing(t)
	dir := writeUnsealed(t, entries...)

	r := openStore(t, dir)
	assert.ElementsMatch(t, []model.SegmentID{self, other}, r.SegmentGraph()[self])
	assert.ElementsMatch(t, []model.SegmentID{self, other}, r.ReachableSegments(self))
	require.NoError(t, r.Close())

	// The recovered footer keeps the edge.
	r = openStore(t, dir)
	assert.ElementsMatch(t, []model.SegmentID{self, other}, r.SegmentGraph()[self])
}

func TestRecovery_IOFailureIsFatal(t *testing.T) {
	sc := newScenario(t)
	s := openStore(t, t.TempDir())
	sc.write(t, s)
	dir := crashCopy(t, s)

	faulty := segfs.NewFaultyFS(nil)
	faulty.AddRule(archive.FileName(0), segfs.Fault{FailAfterBytes: 8})

	_, err := Open(dir, withFileSystem(faulty), WithRecoveryPolicy(RecoveryQuarantine))
	require.Error(t, err)
	require.ErrorIs(t, err, segfs.ErrInjected)

	var rerr *RecoveryError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, KindIO, rerr.Kind)
	assert.Equal(t, sc.c, rerr.ID)

	faulty.ClearRules()
	r := openStore(t, dir, withFileSystem(faulty))
	sc.assertIndexes(t, r)
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "malformed", KindMalformed.String())
	assert.Equal(t, "not-found", KindNotFound.String())
	assert.Equal(t, "io", KindIO.String())
}

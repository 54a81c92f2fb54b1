package segstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/testutil"
)

func writeForest(t *testing.T, s *Store, f *testutil.Forest) {
	t.Helper()
	for _, id := range f.Order {
		require.NoError(t, s.WriteSegment(id, f.Data[id]))
	}
}

func assertForest(t *testing.T, s *Store, f *testutil.Forest) {
	t.Helper()

	graph := s.SegmentGraph()
	assert.Len(t, graph, len(f.Edges))
	for from, to := range f.Edges {
		assert.ElementsMatch(t, to, graph[from], "edges of %s", from)
	}

	refs := make(map[model.SegmentID][]string)
	s.BinaryReferences(func(_ model.GCGeneration, id model.SegmentID, blobID string) {
		refs[id] = append(refs[id], blobID)
	})
	assert.Len(t, refs, len(f.BlobIDs))
	for id, want := range f.BlobIDs {
		assert.ElementsMatch(t, uniqueStrings(want), refs[id], "blob ids of %s", id)
	}

	assert.ElementsMatch(t, f.AllBlobIDs(), collect(t, s))
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func newForest(t *testing.T, seed int64) *testutil.Forest {
	t.Helper()
	f, err := testutil.NewRNG(seed).Forest(testutil.ForestOptions{
		Segments:   300,
		Bulk:       20,
		MaxRefs:    4,
		BlobRatio:  0.3,
		RefRatio:   0.3,
		Generation: g1,
	})
	require.NoError(t, err)
	return f
}

func TestForest_WriteAndReopen(t *testing.T) {
	f := newForest(t, 1)
	dir := t.TempDir()

	s, err := Open(dir, WithMaxFileSize(16<<10), WithCompression(CompressionLZ4))
	require.NoError(t, err)
	writeForest(t, s, f)
	assertForest(t, s, f)
	require.NoError(t, s.Close())

	r := openStore(t, dir)
	assert.Greater(t, len(r.Files()), 1)
	assertForest(t, r, f)
}

func TestForest_CrashRecovery(t *testing.T) {
	f := newForest(t, 2)

	s := openStore(t, t.TempDir(), WithMaxFileSize(16<<10))
	writeForest(t, s, f)
	dir := crashCopy(t, s)

	r := openStore(t, dir, WithSegmentCacheSize(8<<10))
	assertForest(t, r, f)
	assert.Len(t, r.SegmentIDs(), len(f.Order))
}

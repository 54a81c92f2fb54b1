package segstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/segment"
)

func buildSegment(t *testing.T, payload string) []byte {
	t.Helper()
	b := segment.NewBuilder(g1)
	_, err := b.WriteString(payload)
	require.NoError(t, err)
	return b.Build()
}

func TestSegmentCache_Hits(t *testing.T) {
	s := openStore(t, t.TempDir())
	id := model.NewDataSegmentID()
	require.NoError(t, s.WriteSegment(id, buildSegment(t, "cached")))

	first, err := s.ReadSegment(id)
	require.NoError(t, err)
	second, err := s.ReadSegment(id)
	require.NoError(t, err)
	assert.Same(t, first, second)

	stats := s.SegmentCacheStats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Zero(t, stats.Misses)
	assert.Equal(t, int64(1), stats.Count)

	_, err = s.ReadSegmentUncached(id)
	require.NoError(t, err)
	assert.Equal(t, stats, s.SegmentCacheStats())
}

func TestSegmentCache_Disabled(t *testing.T) {
	s := openStore(t, t.TempDir(), WithSegmentCacheSize(0))
	id := model.NewDataSegmentID()
	data := buildSegment(t, "uncached")
	require.NoError(t, s.WriteSegment(id, data))

	for range 3 {
		seg, err := s.ReadSegment(id)
		require.NoError(t, err)
		assert.Equal(t, data, seg.Data())
	}

	stats := s.SegmentCacheStats()
	assert.Zero(t, stats.Count)
	assert.Zero(t, stats.Hits)
	assert.Equal(t, int64(3), stats.Misses)
}

func TestSegmentCache_Eviction(t *testing.T) {
	data := make(map[model.SegmentID][]byte)
	var order []model.SegmentID
	for i := range 200 {
		id := model.NewDataSegmentID()
		data[id] = buildSegment(t, string(rune('a'+i%26)))
		order = append(order, id)
	}
	weight := int64(len(data[order[0]])) + 128

	s := openStore(t, t.TempDir(), WithSegmentCacheSize(32*weight))
	for _, id := range order {
		require.NoError(t, s.WriteSegment(id, data[id]))
	}

	stats := s.SegmentCacheStats()
	assert.LessOrEqual(t, stats.Weight, stats.Capacity)
	assert.Positive(t, stats.Evictions)
	assert.Less(t, stats.Count, int64(len(order)))

	for _, id := range order {
		seg, err := s.ReadSegment(id)
		require.NoError(t, err)
		assert.Equal(t, data[id], seg.Data())
	}
}

func TestSegmentCache_LastWriterWins(t *testing.T) {
	s := openStore(t, t.TempDir())
	id := model.NewDataSegmentID()

	require.NoError(t, s.WriteSegment(id, buildSegment(t, "first")))
	second := buildSegment(t, "second")
	require.NoError(t, s.WriteSegment(id, second))

	seg, err := s.ReadSegment(id)
	require.NoError(t, err)
	assert.Equal(t, second, seg.Data())
	assert.Equal(t, int64(1), s.SegmentCacheStats().Count)
}

func TestSegmentCache_ConcurrentReads(t *testing.T) {
	s := openStore(t, t.TempDir(), WithSegmentCacheSize(4096))
	var ids []model.SegmentID
	for range 32 {
		id := model.NewDataSegmentID()
		require.NoError(t, s.WriteSegment(id, buildSegment(t, id.String())))
		ids = append(ids, id)
	}

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				id := ids[(w+i)%len(ids)]
				seg, err := s.ReadSegment(id)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, id, seg.ID())
			}
		}()
	}
	wg.Wait()
}

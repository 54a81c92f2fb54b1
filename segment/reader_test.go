package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/segstore/model"
)

func TestCachingReader(t *testing.T) {
	id, data, _ := buildTestSegment(t)
	seg, err := Decode(id, data)
	require.NoError(t, err)

	resolves := 0
	r := NewCachingReader(func(model.SegmentID) (*Segment, error) {
		resolves++
		return seg, nil
	}, ReaderOptions{StringCacheSize: 1 << 20, TemplateCacheSize: 1 << 20})

	for i := 0; i < 3; i++ {
		s, err := r.ReadString(model.RecordID{Segment: id, Number: 0})
		require.NoError(t, err)
		assert.Equal(t, "hello", s)

		tmpl, err := r.ReadTemplate(model.RecordID{Segment: id, Number: 3})
		require.NoError(t, err)
		assert.Equal(t, "nt:file", tmpl.PrimaryType)
	}

	assert.Equal(t, 2, resolves)

	ss := r.StringCacheStats()
	assert.Equal(t, int64(2), ss.Hits)
	assert.Equal(t, int64(1), ss.Misses)

	ts := r.TemplateCacheStats()
	assert.Equal(t, int64(2), ts.Hits)
	assert.Equal(t, int64(1), ts.Misses)

	r.Purge()
	assert.Equal(t, int64(0), r.StringCacheStats().Count)
}

func TestCachingReader_Disabled(t *testing.T) {
	id, data, _ := buildTestSegment(t)
	seg, err := Decode(id, data)
	require.NoError(t, err)

	resolves := 0
	r := NewCachingReader(func(model.SegmentID) (*Segment, error) {
		resolves++
		return seg, nil
	}, ReaderOptions{})

	for i := 0; i < 3; i++ {
		s, err := r.ReadString(model.RecordID{Segment: id, Number: 0})
		require.NoError(t, err)
		assert.Equal(t, "hello", s)
	}
	assert.Equal(t, 3, resolves)
}

func TestCachingReader_PropagatesErrors(t *testing.T) {
	id, data, _ := buildTestSegment(t)
	seg, err := Decode(id, data)
	require.NoError(t, err)

	r := NewCachingReader(func(model.SegmentID) (*Segment, error) { return seg, nil },
		ReaderOptions{StringCacheSize: 1 << 10})
	_, err = r.ReadString(model.RecordID{Segment: id, Number: 99})
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

package segment

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/segstore/internal/cache"
	"github.com/hupe1980/segstore/internal/resource"
	"github.com/hupe1980/segstore/model"
)

// ReaderOptions configures a CachingReader.
type ReaderOptions struct {
	// StringCacheSize is the weight budget of the string cache in bytes.
	// Zero disables the cache.
	StringCacheSize int64
	// TemplateCacheSize is the weight budget of the template cache in bytes.
	// Zero disables the cache.
	TemplateCacheSize int64
	// Resources accounts cached bytes as memory. Optional.
	Resources *resource.Controller
}

// CachingReader reads strings and templates through small record-level
// caches in front of a segment Resolver.
type CachingReader struct {
	resolve   Resolver
	strings   *cache.Sharded[model.RecordID, string]
	templates *cache.Sharded[model.RecordID, *Template]
}

// NewCachingReader creates a CachingReader over resolve.
func NewCachingReader(resolve Resolver, opts ReaderOptions) *CachingReader {
	return &CachingReader{
		resolve: resolve,
		strings: cache.NewSharded[model.RecordID, string](opts.StringCacheSize, 0, hashRecordID,
			func(_ model.RecordID, s string) int64 { return int64(len(s)) + 24 },
			opts.Resources),
		templates: cache.NewSharded[model.RecordID, *Template](opts.TemplateCacheSize, 0, hashRecordID,
			func(_ model.RecordID, t *Template) int64 { return t.weight() },
			opts.Resources),
	}
}

func hashRecordID(r model.RecordID) uint64 {
	var buf [20]byte
	binary.LittleEndian.PutUint64(buf[0:], r.Segment.MSB)
	binary.LittleEndian.PutUint64(buf[8:], r.Segment.LSB)
	binary.LittleEndian.PutUint32(buf[16:], r.Number)
	return xxhash.Sum64(buf[:])
}

// ReadString returns the string held by the Value record id.
func (r *CachingReader) ReadString(id model.RecordID) (string, error) {
	if s, ok := r.strings.Get(id); ok {
		return s, nil
	}
	seg, err := r.resolve(id.Segment)
	if err != nil {
		return "", err
	}
	s, err := seg.ReadString(id.Number)
	if err != nil {
		return "", err
	}
	r.strings.Set(id, s)
	return s, nil
}

// ReadTemplate returns the template held by the Template record id.
func (r *CachingReader) ReadTemplate(id model.RecordID) (*Template, error) {
	if t, ok := r.templates.Get(id); ok {
		return t, nil
	}
	seg, err := r.resolve(id.Segment)
	if err != nil {
		return nil, err
	}
	t, err := seg.ReadTemplate(id.Number)
	if err != nil {
		return nil, err
	}
	r.templates.Set(id, t)
	return t, nil
}

// StringCacheStats returns the string cache statistics.
func (r *CachingReader) StringCacheStats() cache.Stats {
	return r.strings.Stats()
}

// TemplateCacheStats returns the template cache statistics.
func (r *CachingReader) TemplateCacheStats() cache.Stats {
	return r.templates.Stats()
}

// Purge empties both caches.
func (r *CachingReader) Purge() {
	r.strings.Purge()
	r.templates.Purge()
}

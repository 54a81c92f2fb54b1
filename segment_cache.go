package segstore

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/segstore/internal/cache"
	"github.com/hupe1980/segstore/internal/resource"
	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/segment"
)

// segmentCache keeps decoded data segments. An identity whose segment is
// cached memoizes it, so repeated reads through the same identity skip the
// LRU lookup and report the hit through the identity's hit recorder.
type segmentCache struct {
	tracker *segment.Tracker
	lru     *cache.Sharded[model.SegmentID, *segment.Segment]
}

func newSegmentCache(capacity int64, rc *resource.Controller) *segmentCache {
	c := &segmentCache{
		lru: cache.NewSharded[model.SegmentID, *segment.Segment](capacity, 0, hashSegmentID,
			func(_ model.SegmentID, seg *segment.Segment) int64 { return int64(seg.Size()) + segmentOverhead },
			rc),
	}
	c.tracker = segment.NewTracker(segment.HitRecorderFunc(c.lru.RecordHit))
	c.lru.OnRemove(func(id model.SegmentID, seg *segment.Segment) {
		c.tracker.Get(id).Unload(seg)
	})
	return c
}

// segmentOverhead approximates the fixed memory of a decoded segment.
const segmentOverhead = 128

func hashSegmentID(id model.SegmentID) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:], id.MSB)
	binary.LittleEndian.PutUint64(buf[8:], id.LSB)
	return xxhash.Sum64(buf[:])
}

// get returns the segment for id, calling load on a miss. cached reports
// whether the segment was served without calling load.
func (c *segmentCache) get(id model.SegmentID, load func() (*segment.Segment, error)) (seg *segment.Segment, cached bool, err error) {
	ident := c.tracker.Get(id)
	if seg := ident.Loaded(); seg != nil {
		ident.Access()
		return seg, true, nil
	}
	if seg, ok := c.lru.Get(id); ok {
		c.memoize(ident, seg)
		return seg, true, nil
	}

	seg, err = load()
	if err != nil {
		return nil, false, err
	}
	c.put(seg)
	return seg, false, nil
}

// put installs seg, replacing any segment cached under the same id.
func (c *segmentCache) put(seg *segment.Segment) {
	c.lru.Set(seg.ID(), seg)
	c.memoize(c.tracker.Get(seg.ID()), seg)
}

func (c *segmentCache) memoize(ident *segment.Identity, seg *segment.Segment) {
	ident.Load(seg)
	// Rejected or evicted in the meantime.
	if !c.lru.Contains(seg.ID()) {
		ident.Unload(seg)
	}
}

func (c *segmentCache) stats() cache.Stats {
	return c.lru.Stats()
}

func (c *segmentCache) purge() {
	c.lru.Purge()
}

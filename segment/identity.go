package segment

import (
	"sync/atomic"

	"github.com/hupe1980/segstore/model"
)

// HitRecorder receives logical cache hits for identities. Implementations must
// be safe for concurrent use and must not block.
type HitRecorder interface {
	RecordHit(id model.SegmentID)
}

// HitRecorderFunc adapts a function to HitRecorder.
type HitRecorderFunc func(id model.SegmentID)

// RecordHit calls f(id).
func (f HitRecorderFunc) RecordHit(id model.SegmentID) { f(id) }

type noopHitRecorder struct{}

func (noopHitRecorder) RecordHit(model.SegmentID) {}

// Identity is the canonical, process-wide object for one segment id. All
// lookups of equal ids through the same Tracker return the same *Identity.
type Identity struct {
	id       model.SegmentID
	index    uint32
	recorder HitRecorder

	loaded atomic.Pointer[Segment]
}

// ID returns the segment id.
func (i *Identity) ID() model.SegmentID { return i.id }

// Index returns the dense index assigned to this identity by its Tracker.
func (i *Identity) Index() uint32 { return i.index }

// IsData reports whether the identity names a data segment.
func (i *Identity) IsData() bool { return i.id.IsData() }

// IsBulk reports whether the identity names a bulk segment.
func (i *Identity) IsBulk() bool { return i.id.IsBulk() }

// Access notifies the hit recorder of a logical cache hit.
func (i *Identity) Access() {
	i.recorder.RecordHit(i.id)
}

// Loaded returns the memoized segment, or nil.
func (i *Identity) Loaded() *Segment {
	return i.loaded.Load()
}

// Load memoizes seg. The segment must belong to this identity.
func (i *Identity) Load(seg *Segment) {
	i.loaded.Store(seg)
}

// Unload drops the memoized segment if it is still seg. Passing nil drops any
// memoized segment.
func (i *Identity) Unload(seg *Segment) {
	if seg == nil {
		i.loaded.Store(nil)
		return
	}
	i.loaded.CompareAndSwap(seg, nil)
}

func (i *Identity) String() string {
	return i.id.String()
}

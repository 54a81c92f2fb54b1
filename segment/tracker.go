package segment

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/hupe1980/segstore/model"
)

const trackerShards = 16

type trackerShard struct {
	mu  sync.RWMutex
	ids map[model.SegmentID]*Identity
}

// Tracker is the canonical identity table. Identities are created lazily on
// first lookup and live until Reset.
type Tracker struct {
	shards   [trackerShards]trackerShard
	recorder HitRecorder

	// arena maps dense indices back to identities.
	arenaMu sync.RWMutex
	arena   []*Identity
}

// NewTracker creates a Tracker whose identities report hits to recorder.
// A nil recorder discards hits.
func NewTracker(recorder HitRecorder) *Tracker {
	if recorder == nil {
		recorder = noopHitRecorder{}
	}
	t := &Tracker{recorder: recorder}
	for i := range t.shards {
		t.shards[i].ids = make(map[model.SegmentID]*Identity)
	}
	return t
}

func shardFor(id model.SegmentID) int {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:], id.MSB)
	binary.LittleEndian.PutUint64(buf[8:], id.LSB)
	return int(xxhash.Sum64(buf[:]) % trackerShards)
}

// SegmentID returns the identity for (msb, lsb), creating it if absent.
func (t *Tracker) SegmentID(msb, lsb uint64) *Identity {
	return t.Get(model.SegmentID{MSB: msb, LSB: lsb})
}

// Get returns the identity for id, creating it if absent.
func (t *Tracker) Get(id model.SegmentID) *Identity {
	sh := &t.shards[shardFor(id)]

	sh.mu.RLock()
	ident, ok := sh.ids[id]
	sh.mu.RUnlock()
	if ok {
		return ident
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if ident, ok := sh.ids[id]; ok {
		return ident
	}

	t.arenaMu.Lock()
	ident = &Identity{
		id:       id,
		index:    uint32(len(t.arena)),
		recorder: t.recorder,
	}
	t.arena = append(t.arena, ident)
	t.arenaMu.Unlock()

	sh.ids[id] = ident
	return ident
}

// NewDataSegmentID creates the identity of a fresh random data segment.
func (t *Tracker) NewDataSegmentID() *Identity {
	return t.Get(model.NewDataSegmentID())
}

// NewBulkSegmentID creates the identity of a fresh random bulk segment.
func (t *Tracker) NewBulkSegmentID() *Identity {
	return t.Get(model.NewBulkSegmentID())
}

// Lookup returns the identity with the given dense index.
func (t *Tracker) Lookup(index uint32) (*Identity, bool) {
	t.arenaMu.RLock()
	defer t.arenaMu.RUnlock()
	if int(index) >= len(t.arena) {
		return nil, false
	}
	return t.arena[index], true
}

// Intern returns the dense index of id.
func (t *Tracker) Intern(id model.SegmentID) uint32 {
	return t.Get(id).index
}

// Resolve returns the segment id with the given dense index.
func (t *Tracker) Resolve(index uint32) (model.SegmentID, bool) {
	ident, ok := t.Lookup(index)
	if !ok {
		return model.SegmentID{}, false
	}
	return ident.id, true
}

// Len returns the number of identities.
func (t *Tracker) Len() int {
	t.arenaMu.RLock()
	defer t.arenaMu.RUnlock()
	return len(t.arena)
}

// Reset drops all identities. Identities handed out earlier stay valid but are
// no longer canonical.
func (t *Tracker) Reset() {
	for i := range t.shards {
		sh := &t.shards[i]
		sh.mu.Lock()
		sh.ids = make(map[model.SegmentID]*Identity)
		sh.mu.Unlock()
	}
	t.arenaMu.Lock()
	t.arena = nil
	t.arenaMu.Unlock()
}

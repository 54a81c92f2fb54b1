package archive

import (
	"sort"

	"github.com/hupe1980/segstore/model"
)

// RefKey keys the binary-reference index.
type RefKey struct {
	Generation model.GCGeneration
	Segment    model.SegmentID
}

// BinaryReferences maps (generation, segment) to the set of external blob ids
// referenced from that segment. Adding is a set union. It is not safe for
// concurrent mutation.
type BinaryReferences struct {
	m map[RefKey]map[string]struct{}
}

// NewBinaryReferences returns an empty index.
func NewBinaryReferences() *BinaryReferences {
	return &BinaryReferences{m: make(map[RefKey]map[string]struct{})}
}

// Add records that segment id of generation gen references blobID.
func (b *BinaryReferences) Add(gen model.GCGeneration, id model.SegmentID, blobID string) {
	k := RefKey{Generation: gen, Segment: id}
	set, ok := b.m[k]
	if !ok {
		set = make(map[string]struct{})
		b.m[k] = set
	}
	set[blobID] = struct{}{}
}

// Get returns the sorted blob ids recorded for (gen, id).
func (b *BinaryReferences) Get(gen model.GCGeneration, id model.SegmentID) []string {
	set := b.m[RefKey{Generation: gen, Segment: id}]
	if len(set) == 0 {
		return nil
	}
	ids := make([]string, 0, len(set))
	for blobID := range set {
		ids = append(ids, blobID)
	}
	sort.Strings(ids)
	return ids
}

// Keys returns the keys with at least one blob id.
func (b *BinaryReferences) Keys() []RefKey {
	keys := make([]RefKey, 0, len(b.m))
	for k := range b.m {
		keys = append(keys, k)
	}
	return keys
}

// ForEach calls fn once per recorded (gen, id, blobID).
func (b *BinaryReferences) ForEach(fn func(gen model.GCGeneration, id model.SegmentID, blobID string)) {
	for k, set := range b.m {
		for blobID := range set {
			fn(k.Generation, k.Segment, blobID)
		}
	}
}

// Len returns the number of recorded (gen, id, blobID) triples.
func (b *BinaryReferences) Len() int {
	n := 0
	for _, set := range b.m {
		n += len(set)
	}
	return n
}

// Merge adds every reference of o.
func (b *BinaryReferences) Merge(o *BinaryReferences) {
	o.ForEach(b.Add)
}

// Map returns a copy of the index with sorted blob ids.
func (b *BinaryReferences) Map() map[RefKey][]string {
	m := make(map[RefKey][]string, len(b.m))
	for k := range b.m {
		m[k] = b.Get(k.Generation, k.Segment)
	}
	return m
}

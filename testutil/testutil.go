package testutil

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/segment"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// DataSegmentID returns a pseudo-random data segment id.
func (r *RNG) DataSegmentID() model.SegmentID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return model.DataSegmentID(r.rand.Uint64(), r.rand.Uint64())
}

// BulkSegmentID returns a pseudo-random bulk segment id.
func (r *RNG) BulkSegmentID() model.SegmentID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return model.BulkSegmentID(r.rand.Uint64(), r.rand.Uint64())
}

// Payload returns n pseudo-random bytes.
// Locks only once per call (preferred over calling Uint64 in a loop).
func (r *RNG) Payload(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf := make([]byte, n)
	_, _ = r.rand.Read(buf)
	return buf
}

// ForestOptions configures RNG.Forest.
type ForestOptions struct {
	// Segments is the number of data segments. Default 100.
	Segments int
	// Bulk is the number of bulk segments mixed into the write order.
	Bulk int
	// MaxRefs bounds the references of a segment to earlier segments. Default 3.
	MaxRefs int
	// BlobRatio is the probability that a segment holds an inline blob id.
	BlobRatio float64
	// RefRatio is the probability that a segment holds a blob id record
	// pointing at a value of an earlier segment.
	RefRatio float64
	// PayloadSize is the size of the value record of every segment. Default 64.
	PayloadSize int
	// Generation tags every data segment.
	Generation model.GCGeneration
}

func (o ForestOptions) withDefaults() ForestOptions {
	if o.Segments <= 0 {
		o.Segments = 100
	}
	if o.MaxRefs <= 0 {
		o.MaxRefs = 3
	}
	if o.PayloadSize <= 0 {
		o.PayloadSize = 64
	}
	return o
}

// Forest is a set of segments in write order, where every segment only
// references segments written before it. Edges and BlobIDs are the graph and
// per-segment blob ids a store derives from the data segments.
type Forest struct {
	Order   []model.SegmentID
	Data    map[model.SegmentID][]byte
	Edges   map[model.SegmentID][]model.SegmentID
	BlobIDs map[model.SegmentID][]string
}

// AllBlobIDs returns every blob id occurrence of the forest.
func (f *Forest) AllBlobIDs() []string {
	var all []string
	for _, ids := range f.BlobIDs {
		all = append(all, ids...)
	}
	return all
}

type blobValue struct {
	segment model.SegmentID
	number  uint32
	blobID  string
}

// Forest generates a random forest.
func (r *RNG) Forest(opts ForestOptions) (*Forest, error) {
	opts = opts.withDefaults()
	f := &Forest{
		Data:    make(map[model.SegmentID][]byte),
		Edges:   make(map[model.SegmentID][]model.SegmentID),
		BlobIDs: make(map[model.SegmentID][]string),
	}

	var (
		data   []model.SegmentID
		values []blobValue
	)
	bulkLeft := opts.Bulk
	for i := range opts.Segments {
		if bulkLeft > 0 && r.Intn(opts.Segments) < opts.Bulk {
			id := r.BulkSegmentID()
			f.Order = append(f.Order, id)
			f.Data[id] = r.Payload(opts.PayloadSize)
			bulkLeft--
		}

		id := r.DataSegmentID()
		b := segment.NewBuilder(opts.Generation)

		if len(data) > 0 {
			seen := make(map[model.SegmentID]bool)
			for range r.Intn(opts.MaxRefs + 1) {
				to := data[r.Intn(len(data))]
				if seen[to] {
					continue
				}
				seen[to] = true
				b.Reference(to)
				f.Edges[id] = append(f.Edges[id], to)
			}
		}

		blobID := fmt.Sprintf("blob-%d-%d", r.seed, i)
		n, err := b.WriteString(blobID)
		if err != nil {
			return nil, err
		}
		values = append(values, blobValue{segment: id, number: n, blobID: blobID})

		if _, err := b.WriteValue(r.Payload(opts.PayloadSize)); err != nil {
			return nil, err
		}
		if r.Float64() < opts.BlobRatio {
			inline := fmt.Sprintf("inline-%d-%d", r.seed, i)
			if _, err := b.WriteInlineBlobID(inline); err != nil {
				return nil, err
			}
			f.BlobIDs[id] = append(f.BlobIDs[id], inline)
		}
		if len(values) > 1 && r.Float64() < opts.RefRatio {
			v := values[r.Intn(len(values)-1)]
			b.WriteBlobIDReference(id, model.RecordID{Segment: v.segment, Number: v.number})
			f.BlobIDs[id] = append(f.BlobIDs[id], v.blobID)
			if !containsID(f.Edges[id], v.segment) {
				f.Edges[id] = append(f.Edges[id], v.segment)
			}
		}

		f.Order = append(f.Order, id)
		f.Data[id] = b.Build()
		data = append(data, id)
	}
	for ; bulkLeft > 0; bulkLeft-- {
		id := r.BulkSegmentID()
		f.Order = append(f.Order, id)
		f.Data[id] = r.Payload(opts.PayloadSize)
	}
	return f, nil
}

func containsID(ids []model.SegmentID, id model.SegmentID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

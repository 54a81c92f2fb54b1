package archive

import (
	"encoding/binary"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/hupe1980/segstore/internal/hash"
	"github.com/hupe1980/segstore/model"
)

type indexEntry struct {
	MSB            uint64 `msgpack:"m"`
	LSB            uint64 `msgpack:"l"`
	Offset         int64  `msgpack:"o"`
	Size           uint32 `msgpack:"s"` // header + stored bytes
	Generation     uint32 `msgpack:"g"`
	FullGeneration uint32 `msgpack:"f"`
	Compacted      bool   `msgpack:"c"`
}

func (e indexEntry) id() model.SegmentID {
	return model.SegmentID{MSB: e.MSB, LSB: e.LSB}
}

func (e indexEntry) generation() model.GCGeneration {
	return model.GCGeneration{Generation: e.Generation, FullGeneration: e.FullGeneration, Compacted: e.Compacted}
}

type graphEntry struct {
	From [2]uint64   `msgpack:"f"`
	To   [][2]uint64 `msgpack:"t"`
}

type refEntry struct {
	Generation     uint32    `msgpack:"g"`
	FullGeneration uint32    `msgpack:"f"`
	Compacted      bool      `msgpack:"c"`
	Segment        [2]uint64 `msgpack:"s"`
	BlobIDs        []string  `msgpack:"b"`
}

type quarantineEntry struct {
	Segment [2]uint64 `msgpack:"s"`
	Kind    int       `msgpack:"k"`
	Reason  string    `msgpack:"r"`
}

type footer struct {
	Entries     []indexEntry      `msgpack:"entries"`
	Graph       []graphEntry      `msgpack:"graph"`
	References  []refEntry        `msgpack:"refs"`
	Quarantined []quarantineEntry `msgpack:"quarantined,omitempty"`
}

func pair(id model.SegmentID) [2]uint64 { return [2]uint64{id.MSB, id.LSB} }

func unpair(p [2]uint64) model.SegmentID { return model.SegmentID{MSB: p[0], LSB: p[1]} }

func newFooter(entries []indexEntry, graph map[model.SegmentID][]model.SegmentID, refs *BinaryReferences, quarantined []QuarantinedEntry) *footer {
	f := &footer{Entries: entries}
	for _, q := range quarantined {
		f.Quarantined = append(f.Quarantined, quarantineEntry{Segment: pair(q.ID), Kind: q.Kind, Reason: q.Reason})
	}
	for from, to := range graph {
		ge := graphEntry{From: pair(from), To: make([][2]uint64, len(to))}
		for i, t := range to {
			ge.To[i] = pair(t)
		}
		f.Graph = append(f.Graph, ge)
	}
	for _, k := range refs.Keys() {
		f.References = append(f.References, refEntry{
			Generation:     k.Generation.Generation,
			FullGeneration: k.Generation.FullGeneration,
			Compacted:      k.Generation.Compacted,
			Segment:        pair(k.Segment),
			BlobIDs:        refs.Get(k.Generation, k.Segment),
		})
	}
	return f
}

func (f *footer) graph() map[model.SegmentID][]model.SegmentID {
	g := make(map[model.SegmentID][]model.SegmentID, len(f.Graph))
	for _, ge := range f.Graph {
		to := make([]model.SegmentID, len(ge.To))
		for i, t := range ge.To {
			to[i] = unpair(t)
		}
		g[unpair(ge.From)] = to
	}
	return g
}

func (f *footer) references() *BinaryReferences {
	refs := NewBinaryReferences()
	for _, re := range f.References {
		gen := model.GCGeneration{Generation: re.Generation, FullGeneration: re.FullGeneration, Compacted: re.Compacted}
		for _, blobID := range re.BlobIDs {
			refs.Add(gen, unpair(re.Segment), blobID)
		}
	}
	return refs
}

func (f *footer) quarantined() []QuarantinedEntry {
	if len(f.Quarantined) == 0 {
		return nil
	}
	q := make([]QuarantinedEntry, len(f.Quarantined))
	for i, e := range f.Quarantined {
		q[i] = QuarantinedEntry{ID: unpair(e.Segment), Kind: e.Kind, Reason: e.Reason}
	}
	return q
}

// encodeFooter returns the footer followed by the trailer.
func encodeFooter(f *footer) ([]byte, error) {
	body, err := msgpack.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode footer: %w", err)
	}
	buf := make([]byte, len(body)+trailerSize)
	copy(buf, body)
	t := buf[len(body):]
	binary.LittleEndian.PutUint32(t[0:], uint32(len(body)))
	binary.LittleEndian.PutUint32(t[4:], hash.CRC32C(body))
	copy(t[8:], trailerMagic)
	return buf, nil
}

// decodeTrailer returns the footer length and checksum.
func decodeTrailer(t []byte) (uint32, uint32, error) {
	if len(t) != trailerSize || string(t[8:12]) != trailerMagic {
		return 0, 0, ErrUnsealed
	}
	return binary.LittleEndian.Uint32(t[0:]), binary.LittleEndian.Uint32(t[4:]), nil
}

func decodeFooter(body []byte, checksum uint32) (*footer, error) {
	if hash.CRC32C(body) != checksum {
		return nil, fmt.Errorf("%w: footer checksum mismatch", ErrUnsealed)
	}
	f := &footer{}
	if err := msgpack.Unmarshal(body, f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsealed, err)
	}
	return f, nil
}

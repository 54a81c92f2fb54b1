package segment

import (
	"encoding/binary"

	"github.com/hupe1980/segstore/model"
)

// Decode decodes data into a Segment for id.
//
// Bulk segments are not decoded: the view wraps the raw buffer with empty
// tables and model.NullGeneration. Data segments are checked structurally and
// a *MalformedError naming id is returned if the tables do not fit the buffer,
// a record offset lies outside the data area, or record numbers are not
// strictly ascending. The returned Segment retains data.
func Decode(id model.SegmentID, data []byte) (*Segment, error) {
	if !id.IsData() {
		return &Segment{id: id, data: data, generation: model.NullGeneration}, nil
	}

	h, err := DecodeHeader(data)
	if err != nil {
		return nil, &MalformedError{ID: id, Reason: err.Error()}
	}
	start := h.dataStart(len(data))
	if start < 0 {
		return nil, malformed(id, "%d references and %d records exceed buffer of %d bytes",
			h.RefCount, h.RecordCount, len(data))
	}

	s := &Segment{
		id:         id,
		data:       data,
		generation: h.Generation,
	}

	pos := HeaderSize
	if h.RefCount > 0 {
		s.references = make([]model.SegmentID, h.RefCount)
		for i := range s.references {
			s.references[i] = model.SegmentID{
				MSB: binary.LittleEndian.Uint64(data[pos:]),
				LSB: binary.LittleEndian.Uint64(data[pos+8:]),
			}
			pos += ReferenceSize
		}
	}

	if h.RecordCount > 0 {
		s.records = make([]Record, h.RecordCount)
		for i := range s.records {
			r := Record{
				Number: binary.LittleEndian.Uint32(data[pos:]),
				Type:   model.RecordType(data[pos+4]),
				Offset: int(binary.LittleEndian.Uint32(data[pos+5:])),
			}
			if i > 0 && r.Number <= s.records[i-1].Number {
				return nil, malformed(id, "record number %d follows %d", r.Number, s.records[i-1].Number)
			}
			if r.Offset < start || r.Offset > len(data) {
				return nil, malformed(id, "record %d offset %d outside data area [%d, %d]",
					r.Number, r.Offset, start, len(data))
			}
			s.records[i] = r
			pos += RecordEntrySize
		}
	}

	return s, nil
}

// ReadGCGeneration returns the generation embedded in a segment buffer without
// decoding its tables. Bulk segments have model.NullGeneration.
func ReadGCGeneration(id model.SegmentID, data []byte) (model.GCGeneration, error) {
	if !id.IsData() {
		return model.NullGeneration, nil
	}
	h, err := DecodeHeader(data)
	if err != nil {
		return model.NullGeneration, &MalformedError{ID: id, Reason: err.Error()}
	}
	return h.Generation, nil
}

package segment

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/hupe1980/segstore/model"
)

// Record is an entry of a segment's record table.
type Record struct {
	Number uint32
	Type   model.RecordType
	// Offset is the byte offset of the record payload within the segment buffer.
	Offset int
}

// Segment is an immutable decoded view over a segment buffer.
type Segment struct {
	id         model.SegmentID
	data       []byte
	generation model.GCGeneration
	references []model.SegmentID
	records    []Record
}

// ID returns the segment id.
func (s *Segment) ID() model.SegmentID { return s.id }

// Data returns the backing buffer. It must not be modified.
func (s *Segment) Data() []byte { return s.data }

// Size returns the length of the backing buffer in bytes.
func (s *Segment) Size() int { return len(s.data) }

// GCGeneration returns the segment's generation. Bulk segments report
// model.NullGeneration.
func (s *Segment) GCGeneration() model.GCGeneration { return s.generation }

// ReferenceCount returns the number of entries in the referenced-id table.
func (s *Segment) ReferenceCount() int { return len(s.references) }

// Reference returns the i-th entry of the referenced-id table.
func (s *Segment) Reference(i int) model.SegmentID { return s.references[i] }

// References returns a copy of the referenced-id table in table order.
func (s *Segment) References() []model.SegmentID {
	return append([]model.SegmentID(nil), s.references...)
}

// RecordCount returns the number of records.
func (s *Segment) RecordCount() int { return len(s.records) }

// Records returns a copy of the record table in ascending record number order.
func (s *Segment) Records() []Record {
	return append([]Record(nil), s.records...)
}

// ForEachRecord calls fn once per record in ascending record number order.
// Records of unknown type are passed through.
func (s *Segment) ForEachRecord(fn func(number uint32, typ model.RecordType, offset int)) {
	for _, r := range s.records {
		fn(r.Number, r.Type, r.Offset)
	}
}

// Record returns the record with the given number.
func (s *Segment) Record(number uint32) (Record, bool) {
	i := sort.Search(len(s.records), func(i int) bool {
		return s.records[i].Number >= number
	})
	if i < len(s.records) && s.records[i].Number == number {
		return s.records[i], true
	}
	return Record{}, false
}

func (s *Segment) typedRecord(number uint32, typ model.RecordType) (Record, error) {
	r, ok := s.Record(number)
	if !ok {
		return Record{}, fmt.Errorf("%w: %s:%d", ErrRecordNotFound, s.id, number)
	}
	if r.Type != typ {
		return Record{}, fmt.Errorf("%w: %s:%d is %s, want %s", ErrUnexpectedRecordType, s.id, number, r.Type, typ)
	}
	return r, nil
}

// ReadValue returns the payload of a Value record.
func (s *Segment) ReadValue(number uint32) ([]byte, error) {
	r, err := s.typedRecord(number, model.RecordTypeValue)
	if err != nil {
		return nil, err
	}
	return s.valueAt(r.Offset)
}

// ReadString returns a Value record as a string.
func (s *Segment) ReadString(number uint32) (string, error) {
	v, err := s.ReadValue(number)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (s *Segment) valueAt(offset int) ([]byte, error) {
	n, err := s.uint32At(offset)
	if err != nil {
		return nil, err
	}
	start := offset + 4
	if uint64(start)+uint64(n) > uint64(len(s.data)) {
		return nil, malformed(s.id, "value at offset %d overruns buffer", offset)
	}
	return s.data[start : start+int(n)], nil
}

func (s *Segment) uint32At(offset int) (uint32, error) {
	if offset < 0 || offset+4 > len(s.data) {
		return 0, malformed(s.id, "read of 4 bytes at offset %d overruns buffer", offset)
	}
	return binary.LittleEndian.Uint32(s.data[offset:]), nil
}

func (s *Segment) uint16At(offset int) (uint16, error) {
	if offset < 0 || offset+2 > len(s.data) {
		return 0, malformed(s.id, "read of 2 bytes at offset %d overruns buffer", offset)
	}
	return binary.LittleEndian.Uint16(s.data[offset:]), nil
}

func (s *Segment) String() string {
	return fmt.Sprintf("Segment{id=%s, size=%d, references=%d, records=%d, generation=%s}",
		s.id, len(s.data), len(s.references), len(s.records), s.generation)
}

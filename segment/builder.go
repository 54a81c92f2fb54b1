package segment

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/hupe1980/segstore/model"
)

var errValueTooLarge = errors.New("value too large")

// Builder assembles a data segment buffer. Records are numbered in the order
// they are written, starting at zero.
type Builder struct {
	generation model.GCGeneration
	references []model.SegmentID
	refIndex   map[model.SegmentID]uint32
	records    []Record
	payload    []byte
}

// NewBuilder returns a Builder for a data segment of the given generation.
func NewBuilder(gen model.GCGeneration) *Builder {
	return &Builder{
		generation: gen,
		refIndex:   make(map[model.SegmentID]uint32),
	}
}

// Reference returns the reference index of id (1-based; 0 means the segment
// itself), adding id to the referenced-id table on first use.
func (b *Builder) Reference(id model.SegmentID) uint32 {
	if i, ok := b.refIndex[id]; ok {
		return i
	}
	b.references = append(b.references, id)
	i := uint32(len(b.references))
	b.refIndex[id] = i
	return i
}

// WriteRecord appends a record of any type with a raw payload and returns its
// record number.
func (b *Builder) WriteRecord(typ model.RecordType, payload []byte) uint32 {
	number := uint32(len(b.records))
	b.records = append(b.records, Record{Number: number, Type: typ, Offset: len(b.payload)})
	b.payload = append(b.payload, payload...)
	return number
}

// WriteValue appends a Value record.
func (b *Builder) WriteValue(v []byte) (uint32, error) {
	if uint64(len(v)) > math.MaxUint32 {
		return 0, errValueTooLarge
	}
	buf := make([]byte, 4+len(v))
	binary.LittleEndian.PutUint32(buf, uint32(len(v)))
	copy(buf[4:], v)
	return b.WriteRecord(model.RecordTypeValue, buf), nil
}

// WriteString appends a Value record holding s.
func (b *Builder) WriteString(s string) (uint32, error) {
	return b.WriteValue([]byte(s))
}

// WriteTemplate appends a Template record. The first name is the primary type.
func (b *Builder) WriteTemplate(t *Template) (uint32, error) {
	buf, err := t.encode()
	if err != nil {
		return 0, err
	}
	return b.WriteRecord(model.RecordTypeTemplate, buf), nil
}

// WriteInlineBlobID appends a BlobID record holding blobID inline.
func (b *Builder) WriteInlineBlobID(blobID string) (uint32, error) {
	if len(blobID) > math.MaxUint16 {
		return 0, errValueTooLarge
	}
	buf := make([]byte, 3+len(blobID))
	buf[0] = blobIDInline
	binary.LittleEndian.PutUint16(buf[1:], uint16(len(blobID)))
	copy(buf[3:], blobID)
	return b.WriteRecord(model.RecordTypeBlobID, buf), nil
}

// WriteBlobIDReference appends a BlobID record pointing at the Value record
// value. The referenced segment is added to the referenced-id table unless it
// is the segment being built, identified by self.
func (b *Builder) WriteBlobIDReference(self model.SegmentID, value model.RecordID) uint32 {
	var ref uint32
	if value.Segment != self {
		ref = b.Reference(value.Segment)
	}
	buf := make([]byte, 9)
	buf[0] = blobIDByReference
	binary.LittleEndian.PutUint32(buf[1:], ref)
	binary.LittleEndian.PutUint32(buf[5:], value.Number)
	return b.WriteRecord(model.RecordTypeBlobID, buf)
}

// Build returns the encoded segment buffer.
func (b *Builder) Build() []byte {
	start := HeaderSize + len(b.references)*ReferenceSize + len(b.records)*RecordEntrySize
	buf := make([]byte, start+len(b.payload))

	h := Header{
		Version:     FormatVersion,
		Generation:  b.generation,
		RefCount:    uint32(len(b.references)),
		RecordCount: uint32(len(b.records)),
	}
	h.Encode(buf)

	pos := HeaderSize
	for _, id := range b.references {
		binary.LittleEndian.PutUint64(buf[pos:], id.MSB)
		binary.LittleEndian.PutUint64(buf[pos+8:], id.LSB)
		pos += ReferenceSize
	}
	for _, r := range b.records {
		binary.LittleEndian.PutUint32(buf[pos:], r.Number)
		buf[pos+4] = byte(r.Type)
		binary.LittleEndian.PutUint32(buf[pos+5:], uint32(start+r.Offset))
		pos += RecordEntrySize
	}
	copy(buf[start:], b.payload)
	return buf
}

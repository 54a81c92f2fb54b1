package model

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

const (
	kindShift = 60
	kindData  = 0xA
	kindBulk  = 0xB

	kindMask = uint64(0xF) << kindShift
)

// SegmentID identifies a segment. It is a plain comparable value; two ids with
// equal halves name the same segment.
type SegmentID struct {
	MSB uint64
	LSB uint64
}

// IsDataSegmentID reports whether lsb carries the data segment marker.
func IsDataSegmentID(lsb uint64) bool {
	return lsb>>kindShift == kindData
}

// IsBulkSegmentID reports whether lsb carries the bulk segment marker.
func IsBulkSegmentID(lsb uint64) bool {
	return lsb>>kindShift == kindBulk
}

// IsData reports whether the id names a data segment.
func (id SegmentID) IsData() bool { return IsDataSegmentID(id.LSB) }

// IsBulk reports whether the id names a bulk segment.
func (id SegmentID) IsBulk() bool { return IsBulkSegmentID(id.LSB) }

// IsZero reports whether both halves are zero.
func (id SegmentID) IsZero() bool { return id.MSB == 0 && id.LSB == 0 }

// UUID returns the id as a UUID value.
func (id SegmentID) UUID() uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint64(u[0:8], id.MSB)
	binary.BigEndian.PutUint64(u[8:16], id.LSB)
	return u
}

// String returns the canonical UUID representation.
func (id SegmentID) String() string {
	return id.UUID().String()
}

// SegmentIDFromUUID converts a UUID into a SegmentID.
func SegmentIDFromUUID(u uuid.UUID) SegmentID {
	return SegmentID{
		MSB: binary.BigEndian.Uint64(u[0:8]),
		LSB: binary.BigEndian.Uint64(u[8:16]),
	}
}

// ParseSegmentID parses the canonical UUID representation of a segment id.
func ParseSegmentID(s string) (SegmentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return SegmentID{}, fmt.Errorf("invalid segment id %q: %w", s, err)
	}
	return SegmentIDFromUUID(u), nil
}

// NewDataSegmentID returns a fresh random data segment id.
func NewDataSegmentID() SegmentID {
	return newSegmentID(kindData)
}

// NewBulkSegmentID returns a fresh random bulk segment id.
func NewBulkSegmentID() SegmentID {
	return newSegmentID(kindBulk)
}

// DataSegmentID returns a data segment id from msb and lsb. The kind bits of
// lsb are overwritten.
func DataSegmentID(msb, lsb uint64) SegmentID {
	return withKind(msb, lsb, kindData)
}

// BulkSegmentID returns a bulk segment id from msb and lsb. The kind bits of
// lsb are overwritten.
func BulkSegmentID(msb, lsb uint64) SegmentID {
	return withKind(msb, lsb, kindBulk)
}

func withKind(msb, lsb, kind uint64) SegmentID {
	return SegmentID{MSB: msb, LSB: (lsb &^ kindMask) | kind<<kindShift}
}

func newSegmentID(kind uint64) SegmentID {
	id := SegmentIDFromUUID(uuid.New())
	return withKind(id.MSB, id.LSB, kind)
}

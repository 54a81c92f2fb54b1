package segment

import (
	"encoding/binary"
	"fmt"

	"github.com/hupe1980/segstore/model"
)

const (
	// Magic identifies a data segment buffer ("SGM1").
	Magic = "SGM1"
	// FormatVersion is the current segment format version.
	FormatVersion = 1

	// HeaderSize is the size of the fixed segment header.
	HeaderSize = 24
	// ReferenceSize is the size of one referenced-id table entry.
	ReferenceSize = 16
	// RecordEntrySize is the size of one record table entry.
	RecordEntrySize = 9

	flagCompacted = 1 << 0
)

// Header is the fixed-size header of a data segment.
type Header struct {
	Version     uint8
	Generation  model.GCGeneration
	RefCount    uint32
	RecordCount uint32
}

// Encode serializes the header into buf, which must be at least HeaderSize bytes.
func (h *Header) Encode(buf []byte) {
	copy(buf[0:4], Magic)
	buf[4] = h.Version
	var flags uint8
	if h.Generation.Compacted {
		flags |= flagCompacted
	}
	buf[5] = flags
	buf[6], buf[7] = 0, 0 // reserved
	binary.LittleEndian.PutUint32(buf[8:], h.Generation.Generation)
	binary.LittleEndian.PutUint32(buf[12:], h.Generation.FullGeneration)
	binary.LittleEndian.PutUint32(buf[16:], h.RefCount)
	binary.LittleEndian.PutUint32(buf[20:], h.RecordCount)
}

// DecodeHeader parses the fixed header at the start of buf.
func DecodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("buffer of %d bytes is shorter than the header", len(buf))
	}
	if string(buf[0:4]) != Magic {
		return nil, fmt.Errorf("invalid magic %q", buf[0:4])
	}
	h := &Header{Version: buf[4]}
	if h.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment format version %d", h.Version)
	}
	h.Generation = model.GCGeneration{
		Generation:     binary.LittleEndian.Uint32(buf[8:]),
		FullGeneration: binary.LittleEndian.Uint32(buf[12:]),
		Compacted:      buf[5]&flagCompacted != 0,
	}
	h.RefCount = binary.LittleEndian.Uint32(buf[16:])
	h.RecordCount = binary.LittleEndian.Uint32(buf[20:])
	return h, nil
}

// dataStart returns the offset of the record data area, or -1 if the tables
// do not fit into a buffer of size n.
func (h *Header) dataStart(n int) int {
	end := uint64(HeaderSize) +
		uint64(h.RefCount)*ReferenceSize +
		uint64(h.RecordCount)*RecordEntrySize
	if end > uint64(n) {
		return -1
	}
	return int(end)
}

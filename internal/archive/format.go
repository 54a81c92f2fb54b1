package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/segstore/model"
)

const (
	fileMagic      = "SGAR"
	fileVersion    = 1
	fileHeaderSize = 8

	entryMagic      = "SGEN"
	entryHeaderSize = 42

	trailerMagic = "SGAX"
	trailerSize  = 12

	flagCompacted = 1 << 0
)

var (
	// ErrCorrupt is returned when an archive file or entry fails validation.
	ErrCorrupt = errors.New("corrupt archive")
	// ErrUnsealed is returned when an archive file has no valid footer.
	ErrUnsealed = errors.New("archive not sealed")
	// ErrClosed is returned when using a closed writer or set.
	ErrClosed = errors.New("archive closed")
	// ErrReadOnly is returned when writing to a read-only set.
	ErrReadOnly = errors.New("archive set is read-only")
)

// Entry is a segment stored in an archive file.
type Entry struct {
	ID         model.SegmentID
	Generation model.GCGeneration
	Data       []byte
}

type entryHeader struct {
	ID          model.SegmentID
	Generation  model.GCGeneration
	Compression Compression
	RawLen      uint32
	StoredLen   uint32
	Checksum    uint32
}

func (h *entryHeader) encode(buf []byte) {
	copy(buf[0:4], entryMagic)
	binary.LittleEndian.PutUint64(buf[4:], h.ID.MSB)
	binary.LittleEndian.PutUint64(buf[12:], h.ID.LSB)
	binary.LittleEndian.PutUint32(buf[20:], h.Generation.Generation)
	binary.LittleEndian.PutUint32(buf[24:], h.Generation.FullGeneration)
	var flags uint8
	if h.Generation.Compacted {
		flags |= flagCompacted
	}
	buf[28] = flags
	buf[29] = uint8(h.Compression)
	binary.LittleEndian.PutUint32(buf[30:], h.RawLen)
	binary.LittleEndian.PutUint32(buf[34:], h.StoredLen)
	binary.LittleEndian.PutUint32(buf[38:], h.Checksum)
}

func decodeEntryHeader(buf []byte) (entryHeader, error) {
	if len(buf) < entryHeaderSize {
		return entryHeader{}, fmt.Errorf("%w: short entry header", ErrCorrupt)
	}
	if string(buf[0:4]) != entryMagic {
		return entryHeader{}, fmt.Errorf("%w: invalid entry magic %q", ErrCorrupt, buf[0:4])
	}
	return entryHeader{
		ID: model.SegmentID{
			MSB: binary.LittleEndian.Uint64(buf[4:]),
			LSB: binary.LittleEndian.Uint64(buf[12:]),
		},
		Generation: model.GCGeneration{
			Generation:     binary.LittleEndian.Uint32(buf[20:]),
			FullGeneration: binary.LittleEndian.Uint32(buf[24:]),
			Compacted:      buf[28]&flagCompacted != 0,
		},
		Compression: Compression(buf[29]),
		RawLen:      binary.LittleEndian.Uint32(buf[30:]),
		StoredLen:   binary.LittleEndian.Uint32(buf[34:]),
		Checksum:    binary.LittleEndian.Uint32(buf[38:]),
	}, nil
}

func encodeFileHeader() []byte {
	buf := make([]byte, fileHeaderSize)
	copy(buf[0:4], fileMagic)
	binary.LittleEndian.PutUint32(buf[4:], fileVersion)
	return buf
}

func checkFileHeader(buf []byte) error {
	if len(buf) < fileHeaderSize || string(buf[0:4]) != fileMagic {
		return fmt.Errorf("%w: invalid file header", ErrCorrupt)
	}
	if v := binary.LittleEndian.Uint32(buf[4:]); v != fileVersion {
		return fmt.Errorf("%w: unsupported file version %d", ErrCorrupt, v)
	}
	return nil
}

// FileName returns the name of the archive file with the given number.
func FileName(n int) string {
	return fmt.Sprintf("data%05d.seg", n)
}

// parseFileName returns the number of an archive file name.
func parseFileName(name string) (int, bool) {
	if !strings.HasPrefix(name, "data") || !strings.HasSuffix(name, ".seg") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "data"), ".seg"))
	if err != nil || n < 0 || FileName(n) != name {
		return 0, false
	}
	return n, true
}

package manifest

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/segstore/internal/hash"
)

const (
	binaryMagic      = 0x464d4753 // "SGMF"
	binaryFormat     = 1
	binaryHeaderSize = 16
)

// MarshalBinary encodes the manifest.
func (m *Manifest) MarshalBinary() ([]byte, error) {
	pb := newPayloadBuffer(make([]byte, 0, 20))
	pb.writeUint32(uint32(int32(m.StoreVersion)))
	pb.writeUint64(uint64(m.CreatedAt.UnixNano()))
	pb.writeUint64(uint64(m.UpdatedAt.UnixNano()))
	if pb.err != nil {
		return nil, pb.err
	}

	payload := pb.buf
	buf := make([]byte, binaryHeaderSize, binaryHeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], binaryMagic)
	binary.LittleEndian.PutUint32(buf[4:8], binaryFormat)
	binary.LittleEndian.PutUint32(buf[8:12], hash.CRC32C(payload))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(payload)))
	return append(buf, payload...), nil
}

// UnmarshalBinary decodes a manifest produced by MarshalBinary.
func (m *Manifest) UnmarshalBinary(data []byte) error {
	if len(data) < binaryHeaderSize {
		return fmt.Errorf("%w: %d bytes", ErrCorrupt, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != binaryMagic {
		return fmt.Errorf("%w: invalid magic %x", ErrCorrupt, magic)
	}
	if format := binary.LittleEndian.Uint32(data[4:8]); format != binaryFormat {
		return fmt.Errorf("%w: unsupported file format %d", ErrCorrupt, format)
	}
	checksum := binary.LittleEndian.Uint32(data[8:12])
	length := binary.LittleEndian.Uint32(data[12:16])
	if uint64(binaryHeaderSize)+uint64(length) > uint64(len(data)) {
		return fmt.Errorf("%w: payload truncated", ErrCorrupt)
	}
	payload := data[binaryHeaderSize : binaryHeaderSize+int(length)]
	if hash.CRC32C(payload) != checksum {
		return fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	pb := newPayloadBuffer(payload)
	m.StoreVersion = int(int32(pb.readUint32()))
	m.CreatedAt = time.Unix(0, int64(pb.readUint64()))
	m.UpdatedAt = time.Unix(0, int64(pb.readUint64()))
	if pb.err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, pb.err)
	}
	return nil
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func newPayloadBuffer(b []byte) *payloadBuffer {
	return &payloadBuffer{buf: b}
}

func (p *payloadBuffer) writeUint64(v uint64) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

func (p *payloadBuffer) writeUint32(v uint32) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *payloadBuffer) readUint64() uint64 {
	if p.err != nil {
		return 0
	}
	if p.pos+8 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint64(p.buf[p.pos:])
	p.pos += 8
	return v
}

func (p *payloadBuffer) readUint32() uint32 {
	if p.err != nil {
		return 0
	}
	if p.pos+4 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v
}

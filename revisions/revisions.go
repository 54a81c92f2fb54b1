// Package revisions keeps the head revision of a segment store: the record
// id of the current root node. Updates are compare-and-set so that a writer
// never overwrites a head it has not seen.
package revisions

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hupe1980/segstore/model"
)

// ErrClosed is returned when using closed revisions.
var ErrClosed = errors.New("revisions closed")

// Revisions stores the head record id.
type Revisions interface {
	// Head returns the current head. ok is false if no head was set yet.
	Head(ctx context.Context) (head model.RecordID, ok bool, err error)
	// SetHead replaces the head with head if the current head equals
	// expected. The zero RecordID as expected matches an unset head.
	// It reports whether the head was replaced.
	SetHead(ctx context.Context, expected, head model.RecordID) (bool, error)
	Close() error
}

const recordIDSize = 20

func encodeRecordID(r model.RecordID) []byte {
	buf := make([]byte, recordIDSize)
	binary.BigEndian.PutUint64(buf[0:], r.Segment.MSB)
	binary.BigEndian.PutUint64(buf[8:], r.Segment.LSB)
	binary.BigEndian.PutUint32(buf[16:], r.Number)
	return buf
}

func decodeRecordID(buf []byte) (model.RecordID, error) {
	if len(buf) != recordIDSize {
		return model.RecordID{}, fmt.Errorf("revisions: invalid record id length %d", len(buf))
	}
	return model.RecordID{
		Segment: model.SegmentID{
			MSB: binary.BigEndian.Uint64(buf[0:]),
			LSB: binary.BigEndian.Uint64(buf[8:]),
		},
		Number: binary.BigEndian.Uint32(buf[16:]),
	}, nil
}

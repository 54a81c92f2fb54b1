package segment

import (
	"errors"
	"fmt"

	"github.com/hupe1980/segstore/model"
)

var (
	// ErrMalformed is returned when a buffer fails structural decoding.
	ErrMalformed = errors.New("malformed segment")
	// ErrRecordNotFound is returned when a record number is not in the record table.
	ErrRecordNotFound = errors.New("record not found")
	// ErrUnexpectedRecordType is returned when a record has a different type than requested.
	ErrUnexpectedRecordType = errors.New("unexpected record type")
)

// MalformedError names the segment that failed to decode and why.
type MalformedError struct {
	ID     model.SegmentID
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed segment %s: %s", e.ID, e.Reason)
}

// Unwrap returns ErrMalformed.
func (e *MalformedError) Unwrap() error {
	return ErrMalformed
}

func malformed(id model.SegmentID, format string, args ...any) error {
	return &MalformedError{ID: id, Reason: fmt.Sprintf(format, args...)}
}

package segstore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/segstore/internal/archive"
	"github.com/hupe1980/segstore/internal/manifest"
	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/segment"
)

var (
	// ErrSegmentNotFound is returned when a segment id is not stored.
	ErrSegmentNotFound = errors.New("segment not found")

	// ErrMalformedSegment is returned when stored bytes fail to decode.
	ErrMalformedSegment = segment.ErrMalformed

	// ErrIncompatibleVersion is returned by Open when the store format version
	// is outside the supported range.
	ErrIncompatibleVersion = manifest.ErrIncompatibleVersion

	// ErrClosed is returned when using a closed store.
	ErrClosed = errors.New("store closed")

	// ErrReadOnly is returned for writes to a store opened read-only, and by
	// Open when a read-only store needs crash recovery.
	ErrReadOnly = errors.New("store is read-only")

	// ErrNoBlobStore is returned by blob operations when no blob store is configured.
	ErrNoBlobStore = errors.New("no blob store configured")

	// ErrNoRevisions is returned by head operations when no revisions are configured.
	ErrNoRevisions = errors.New("no revisions configured")
)

// MalformedSegmentError names the segment that failed to decode.
type MalformedSegmentError = segment.MalformedError

// IncompatibleVersionError carries the rejected store version and the supported range.
type IncompatibleVersionError = manifest.IncompatibleVersionError

// SegmentNotFoundError names the missing segment.
type SegmentNotFoundError struct {
	ID model.SegmentID
}

func (e *SegmentNotFoundError) Error() string {
	return fmt.Sprintf("segment %s not found", e.ID)
}

// Unwrap returns ErrSegmentNotFound.
func (e *SegmentNotFoundError) Unwrap() error { return ErrSegmentNotFound }

// ErrorKind classifies a recovery failure.
type ErrorKind int

const (
	// KindMalformed marks an entry whose bytes failed to decode.
	KindMalformed ErrorKind = iota
	// KindNotFound marks an entry that references a segment that cannot be resolved.
	KindNotFound
	// KindIO marks a failure to re-append an entry.
	KindIO
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindNotFound:
		return "not-found"
	case KindIO:
		return "io"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// RecoveryError describes an entry that could not be recovered.
//
// The underlying error can be accessed via errors.Unwrap.
type RecoveryError struct {
	ID   model.SegmentID
	Kind ErrorKind
	Err  error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("recover segment %s (%s): %v", e.ID, e.Kind, e.Err)
}

func (e *RecoveryError) Unwrap() error { return e.Err }

func newRecoveryError(id model.SegmentID, err error) *RecoveryError {
	kind := KindIO
	switch {
	case errors.Is(err, ErrMalformedSegment),
		errors.Is(err, segment.ErrRecordNotFound),
		errors.Is(err, segment.ErrUnexpectedRecordType):
		kind = KindMalformed
	case errors.Is(err, ErrSegmentNotFound):
		kind = KindNotFound
	}
	return &RecoveryError{ID: id, Kind: kind, Err: err}
}

// quarantineCause rebuilds the cause of a quarantine record read back from an
// archive footer.
func quarantineCause(kind ErrorKind, reason string) error {
	switch kind {
	case KindMalformed:
		return fmt.Errorf("%w: %s", ErrMalformedSegment, reason)
	case KindNotFound:
		return fmt.Errorf("%w: %s", ErrSegmentNotFound, reason)
	}
	return errors.New(reason)
}

// translateError maps archive errors to the public sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, archive.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, archive.ErrReadOnly):
		return fmt.Errorf("%w: %w", ErrReadOnly, err)
	}
	return err
}

package archive

import (
	"errors"
	"fmt"
	"os"

	"github.com/hupe1980/segstore/internal/fs"
	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/segment"
)

const backupSuffix = ".bak"

// Recovery is the sink through which a Replayer restores one entry into the
// archive file being rebuilt.
type Recovery interface {
	// RecoverEntry re-appends the raw entry.
	RecoverEntry(id model.SegmentID, gen model.GCGeneration, data []byte) error
	// AddSegment makes a decoded segment visible to later entries of the pass.
	AddSegment(seg *segment.Segment)
	// RecoverGraphEdge records the edge from -> to.
	RecoverGraphEdge(from, to model.SegmentID)
	// RecoverBinaryReference records that segment id of generation gen references blobID.
	RecoverBinaryReference(gen model.GCGeneration, id model.SegmentID, blobID string)
	// RecoveredSegment returns a segment added earlier in the same pass.
	RecoveredSegment(id model.SegmentID) (*segment.Segment, bool)
	// Quarantine records that a re-appended entry contributes nothing to the
	// indexes of the file.
	Quarantine(q QuarantinedEntry)
}

// QuarantinedEntry names an entry whose raw bytes were kept by recovery but
// could not be indexed. Kind and Reason are opaque to this package.
type QuarantinedEntry struct {
	ID     model.SegmentID
	Kind   int
	Reason string
}

// Replayer restores one entry through a Recovery.
type Replayer interface {
	Replay(e Entry, rec Recovery) error
}

// ReplayerFunc adapts a function to Replayer.
type ReplayerFunc func(e Entry, rec Recovery) error

// Replay calls f(e, rec).
func (f ReplayerFunc) Replay(e Entry, rec Recovery) error { return f(e, rec) }

// RecoveryReport describes one recovered archive file.
type RecoveryReport struct {
	File string
	// Entries is the number of intact entries replayed.
	Entries int
	// DiscardedBytes is the number of bytes after the last intact entry.
	DiscardedBytes int64
}

type recovery struct {
	w        *Writer
	segments map[model.SegmentID]*segment.Segment
}

func (r *recovery) RecoverEntry(id model.SegmentID, gen model.GCGeneration, data []byte) error {
	return r.w.WriteEntry(id, gen, data)
}

func (r *recovery) AddSegment(seg *segment.Segment) {
	r.segments[seg.ID()] = seg
}

func (r *recovery) RecoverGraphEdge(from, to model.SegmentID) {
	r.w.AddGraphEdge(from, to)
}

func (r *recovery) RecoverBinaryReference(gen model.GCGeneration, id model.SegmentID, blobID string) {
	r.w.AddBinaryReference(gen, id, blobID)
}

func (r *recovery) Quarantine(q QuarantinedEntry) {
	r.w.Quarantine(q)
}

func (r *recovery) RecoveredSegment(id model.SegmentID) (*segment.Segment, bool) {
	seg, ok := r.segments[id]
	return seg, ok
}

// Recover rebuilds the unsealed archive file at path. The file is moved to
// path+".bak", each intact entry is handed to replayer which re-appends it to
// a new file at path, and the new file is sealed. On failure the backup is
// moved back so recovery can be retried from the same source.
func Recover(fsys fs.FileSystem, path string, opts Options, replayer Replayer) (RecoveryReport, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	report := RecoveryReport{File: path}
	bak := path + backupSuffix

	if err := fsys.Rename(path, bak); err != nil {
		return report, fmt.Errorf("back up %s: %w", path, err)
	}

	restore := func(cause error) error {
		errs := []error{cause}
		if err := fsys.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
		if err := fsys.Rename(bak, path); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", path, err))
		}
		return errors.Join(errs...)
	}

	w, err := Create(fsys, path, opts)
	if err != nil {
		return report, restore(err)
	}

	rec := &recovery{w: w, segments: make(map[model.SegmentID]*segment.Segment)}
	res, err := Scan(fsys, bak, func(e Entry) error {
		return replayer.Replay(e, rec)
	})
	report.Entries = res.Entries
	report.DiscardedBytes = res.Size - res.ValidBytes
	if err != nil {
		w.abandon()
		return report, restore(err)
	}
	if err := w.Close(); err != nil {
		return report, restore(err)
	}

	// A leftover backup next to a sealed file is removed at the next open.
	_ = fsys.Remove(bak)
	return report, nil
}

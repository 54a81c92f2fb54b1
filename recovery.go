package segstore

import (
	"context"

	"github.com/hupe1980/segstore/internal/archive"
	"github.com/hupe1980/segstore/segment"
)

// recover replays the archive files that were not sealed.
func (s *Store) recover() error {
	ctx := context.Background()
	pending := s.archives.Pending()
	for _, name := range pending {
		s.logger.InfoContext(ctx, "archive needs recovery", "file", name)
	}

	reports, err := s.archives.Recover(archive.ReplayerFunc(s.replay))
	for _, r := range reports {
		s.logger.LogRecovery(ctx, r.File, r.Entries, r.DiscardedBytes, nil)
	}
	if err != nil && len(reports) < len(pending) {
		s.logger.LogRecovery(ctx, pending[len(reports)], 0, 0, err)
	}
	return err
}

// replay restores one entry. The raw bytes are always re-appended. A data
// segment is decoded and its blob ids resolved before anything is recorded,
// so an entry that fails contributes no edges, references or cache entries.
func (s *Store) replay(e archive.Entry, rec archive.Recovery) error {
	ctx := context.Background()

	if !e.ID.IsData() {
		if err := rec.RecoverEntry(e.ID, e.Generation, e.Data); err != nil {
			return &RecoveryError{ID: e.ID, Kind: KindIO, Err: err}
		}
		s.metrics.RecordRecoveredEntry(true, false)
		s.logger.LogRecoveredEntry(ctx, e.ID, 0, 0)
		return nil
	}

	seg, blobIDs, err := s.decodeForRecovery(e, rec)
	if err != nil {
		rerr := newRecoveryError(e.ID, err)
		if s.opts.recoveryPolicy != RecoveryQuarantine {
			return rerr
		}
		if err := rec.RecoverEntry(e.ID, e.Generation, e.Data); err != nil {
			return &RecoveryError{ID: e.ID, Kind: KindIO, Err: err}
		}
		rec.Quarantine(archive.QuarantinedEntry{ID: e.ID, Kind: int(rerr.Kind), Reason: rerr.Err.Error()})
		s.quarantineMu.Lock()
		s.quarantined = append(s.quarantined, rerr)
		s.quarantineMu.Unlock()
		s.metrics.RecordRecoveredEntry(false, true)
		s.logger.LogQuarantine(ctx, rerr)
		return nil
	}

	if err := rec.RecoverEntry(e.ID, e.Generation, e.Data); err != nil {
		return &RecoveryError{ID: e.ID, Kind: KindIO, Err: err}
	}
	rec.AddSegment(seg)
	edges := seg.References()
	for _, to := range edges {
		rec.RecoverGraphEdge(e.ID, to)
	}
	for _, b := range blobIDs {
		rec.RecoverBinaryReference(seg.GCGeneration(), e.ID, b)
	}
	s.segments.put(seg)

	s.metrics.RecordRecoveredEntry(false, false)
	s.logger.LogRecoveredEntry(ctx, e.ID, len(edges), len(blobIDs))
	return nil
}

func (s *Store) decodeForRecovery(e archive.Entry, rec archive.Recovery) (*segment.Segment, []string, error) {
	seg, err := segment.Decode(e.ID, e.Data)
	if err != nil {
		return nil, nil, err
	}
	blobIDs, err := seg.BlobIDs(s.resolver(seg, rec))
	if err != nil {
		return nil, nil, err
	}
	return seg, blobIDs, nil
}

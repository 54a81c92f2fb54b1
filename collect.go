package segstore

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// CollectBlobReferences calls fn once for every blob id occurrence in the
// data segments stored when the call starts. Quarantined entries are
// skipped. Segments are read concurrently, but fn is never called
// concurrently. Blob ids written after the call starts may be missed.
func (s *Store) CollectBlobReferences(ctx context.Context, fn func(blobID string)) error {
	if s.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	segments, references, err := s.collectBlobReferences(ctx, fn)
	s.metrics.RecordCollect(segments, references, time.Since(start), err)
	s.logger.LogCollect(ctx, segments, references, err)
	return err
}

func (s *Store) collectBlobReferences(ctx context.Context, fn func(blobID string)) (segments, references int, err error) {
	ids := s.archives.SegmentIDs()
	skip := s.quarantinedIDs()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.collectConcurrency)

	for _, id := range ids {
		if _, ok := skip[id]; ok || !id.IsData() {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := s.rc.AcquireIO(gctx, s.archives.EntrySize(id)); err != nil {
				return err
			}
			seg, err := s.ReadSegment(id)
			if err != nil {
				return err
			}
			blobIDs, err := seg.BlobIDs(s.resolver(seg, nil))
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			segments++
			references += len(blobIDs)
			for _, b := range blobIDs {
				fn(b)
			}
			return nil
		})
	}

	err = g.Wait()
	return segments, references, err
}

package blobstore

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// SweepOptions configures Sweep.
type SweepOptions struct {
	// Prefix restricts the sweep to blobs with this name prefix.
	Prefix string
	// DryRun reports what would be deleted without deleting.
	DryRun bool
	// Concurrency is the number of concurrent deletes. Default 8.
	Concurrency int
}

// SweepReport describes the outcome of a Sweep.
type SweepReport struct {
	Listed  int
	Kept    int
	Deleted []string
}

// Sweep deletes every blob that referenced reports as unreferenced.
//
// The referenced set must be complete for the point in time the blob list is
// taken: blobs uploaded after the references were collected are deleted too,
// so callers must collect references after listing or hold off writers.
func Sweep(ctx context.Context, bs BlobStore, referenced func(name string) bool, opts SweepOptions) (SweepReport, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}

	names, err := bs.List(ctx, opts.Prefix)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{Listed: len(names)}
	var unreferenced []string
	for _, name := range names {
		if referenced(name) {
			report.Kept++
			continue
		}
		unreferenced = append(unreferenced, name)
	}
	if opts.DryRun {
		report.Deleted = unreferenced
		return report, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for _, name := range unreferenced {
		g.Go(func() error {
			if err := bs.Delete(gctx, name); err != nil {
				return err
			}
			mu.Lock()
			report.Deleted = append(report.Deleted, name)
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	sort.Strings(report.Deleted)
	return report, err
}

package segstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/segstore/blobstore"
	"github.com/hupe1980/segstore/internal/archive"
	"github.com/hupe1980/segstore/internal/graph"
	"github.com/hupe1980/segstore/internal/manifest"
	"github.com/hupe1980/segstore/internal/resource"
	"github.com/hupe1980/segstore/model"
	"github.com/hupe1980/segstore/segment"
)

// FileInfo describes one archive file of the store.
type FileInfo = archive.FileInfo

// Store is a segment store rooted at one directory.
//
// A Store is safe for concurrent use. Writes are serialized by the active
// archive file; reads never block on writes of other segments.
type Store struct {
	dir  string
	opts options

	manifest *manifest.Manifest
	rc       *resource.Controller
	archives *archive.Set
	segments *segmentCache
	reader   *segment.CachingReader

	mu    sync.RWMutex // guards graph and refs
	graph *graph.Graph
	refs  *archive.BinaryReferences

	quarantineMu sync.Mutex
	quarantined  []*RecoveryError

	closed atomic.Bool

	logger  *Logger
	metrics MetricsCollector
}

// Open opens the store in dir, creating it if it does not exist.
//
// The store version is checked before any archive file is read. Archive
// files left unsealed by a crash are then recovered: their intact entries are
// replayed into fresh files and every data segment among them is decoded,
// cached and indexed. Open fails with ErrIncompatibleVersion,
// ErrReadOnly (a read-only store that needs recovery) or the first
// *RecoveryError under RecoveryAbort.
func Open(dir string, optFns ...Option) (*Store, error) {
	o := applyOptions(optFns)
	ctx := context.Background()
	logger := o.logger.WithDir(dir)

	s, err := open(dir, o, logger)
	if err != nil {
		logger.LogOpen(ctx, 0, 0, 0, err)
		return nil, err
	}

	logger.LogOpen(ctx, s.manifest.StoreVersion, len(s.archives.Files()), len(s.archives.SegmentIDs()), nil)
	return s, nil
}

func open(dir string, o options, logger *Logger) (*Store, error) {
	fsys := o.fileSystem
	if !o.readOnly {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	hasData, err := archive.HasArchives(fsys, dir)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Gate(fsys, dir, manifest.GateOptions{
		Strict:   o.strictVersion,
		ReadOnly: o.readOnly,
		HasData:  hasData,
	})
	if err != nil {
		return nil, err
	}

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:   o.memoryLimit,
		IOLimitBytesPerSec: o.collectIOBytesPerSec,
	})

	s := &Store{
		dir:      dir,
		opts:     o,
		manifest: m,
		rc:       rc,
		segments: newSegmentCache(o.segmentCacheSize, rc),
		refs:     archive.NewBinaryReferences(),
		logger:   logger,
		metrics:  o.metricsCollector,
	}
	s.graph = graph.New(s.segments.tracker)
	s.reader = segment.NewCachingReader(s.ReadSegment, segment.ReaderOptions{
		StringCacheSize:   o.stringCacheSize,
		TemplateCacheSize: o.templateCacheSize,
		Resources:         rc,
	})

	s.archives, err = archive.OpenSet(fsys, dir, o.archiveOptions())
	if err != nil {
		return nil, err
	}

	if err := s.recover(); err != nil {
		if cerr := s.archives.Close(); cerr != nil {
			logger.LogClose(context.Background(), "archives", cerr)
		}
		return nil, translateError(err)
	}

	s.loadQuarantine()

	for from, to := range s.archives.Graph() {
		for _, t := range to {
			s.graph.AddEdge(from, t)
		}
	}
	s.refs.Merge(s.archives.BinaryReferences())
	return s, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// StoreVersion returns the format version recorded in the manifest.
func (s *Store) StoreVersion() int { return s.manifest.StoreVersion }

// ReadSegment returns the decoded segment id, from the segment cache when
// possible. Bulk segments are never cached.
func (s *Store) ReadSegment(id model.SegmentID) (*segment.Segment, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	start := time.Now()
	var (
		seg    *segment.Segment
		cached bool
		err    error
	)
	if id.IsData() {
		seg, cached, err = s.segments.get(id, func() (*segment.Segment, error) {
			return s.readSegment(id)
		})
	} else {
		seg, err = s.readSegment(id)
	}
	s.metrics.RecordSegmentRead(cached, time.Since(start), err)
	return seg, err
}

// ReadSegmentUncached reads and decodes segment id from the archive files,
// bypassing the segment cache.
func (s *Store) ReadSegmentUncached(id model.SegmentID) (*segment.Segment, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	return s.readSegment(id)
}

func (s *Store) readSegment(id model.SegmentID) (*segment.Segment, error) {
	data, ok, err := s.archives.ReadSegment(id)
	if err != nil {
		return nil, translateError(err)
	}
	if !ok {
		return nil, &SegmentNotFoundError{ID: id}
	}
	return segment.Decode(id, data)
}

// ContainsSegment reports whether segment id is stored.
func (s *Store) ContainsSegment(id model.SegmentID) bool {
	return s.archives.Contains(id)
}

// SegmentIDs returns the ids of all stored segments, oldest first.
func (s *Store) SegmentIDs() []model.SegmentID {
	return s.archives.SegmentIDs()
}

// WriteSegment appends a segment. Data segments are decoded first, so a
// malformed buffer is rejected before it is stored; their references become
// graph edges, their blob ids binary references, and the decoded segment is
// installed in the segment cache.
func (s *Store) WriteSegment(id model.SegmentID, data []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.opts.readOnly {
		return ErrReadOnly
	}

	start := time.Now()
	err := s.writeSegment(id, data)
	s.metrics.RecordSegmentWrite(len(data), time.Since(start), err)
	return err
}

func (s *Store) writeSegment(id model.SegmentID, data []byte) error {
	if !id.IsData() {
		return translateError(s.archives.WriteSegment(id, model.NullGeneration, data, nil, nil))
	}

	seg, err := segment.Decode(id, data)
	if err != nil {
		return err
	}
	blobIDs, err := seg.BlobIDs(s.resolver(seg, nil))
	if err != nil {
		return err
	}
	edges := seg.References()
	gen := seg.GCGeneration()

	if err := s.archives.WriteSegment(id, gen, data, edges, blobIDs); err != nil {
		return translateError(err)
	}

	s.mu.Lock()
	for _, to := range edges {
		s.graph.AddEdge(id, to)
	}
	for _, b := range blobIDs {
		s.refs.Add(gen, id, b)
	}
	s.mu.Unlock()

	s.segments.put(seg)
	return nil
}

// resolver resolves segments referenced from seg: seg itself, then segments
// recovered earlier in the same pass, then the store.
func (s *Store) resolver(seg *segment.Segment, rec archive.Recovery) segment.Resolver {
	return func(id model.SegmentID) (*segment.Segment, error) {
		if id == seg.ID() {
			return seg, nil
		}
		if rec != nil {
			if other, ok := rec.RecoveredSegment(id); ok {
				return other, nil
			}
		}
		return s.ReadSegment(id)
	}
}

// SegmentGraph returns the outgoing references of every stored data segment.
func (s *Store) SegmentGraph() map[model.SegmentID][]model.SegmentID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Map()
}

// ReachableSegments returns the segments reachable from roots through the
// segment graph, roots included.
func (s *Store) ReachableSegments(roots ...model.SegmentID) []model.SegmentID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Reachable(roots...)
}

// BinaryReferences calls fn for every recorded (generation, segment, blob id)
// triple.
func (s *Store) BinaryReferences(fn func(gen model.GCGeneration, id model.SegmentID, blobID string)) {
	s.mu.RLock()
	refs := archive.NewBinaryReferences()
	refs.Merge(s.refs)
	s.mu.RUnlock()

	refs.ForEach(fn)
}

// ReadString reads the string held by the Value record id through the string cache.
func (s *Store) ReadString(id model.RecordID) (string, error) {
	return s.reader.ReadString(id)
}

// ReadTemplate reads the Template record id through the template cache.
func (s *Store) ReadTemplate(id model.RecordID) (*segment.Template, error) {
	return s.reader.ReadTemplate(id)
}

// SegmentCacheStats returns the segment cache counters.
func (s *Store) SegmentCacheStats() CacheStats { return s.segments.stats() }

// StringCacheStats returns the string cache counters.
func (s *Store) StringCacheStats() CacheStats { return s.reader.StringCacheStats() }

// TemplateCacheStats returns the template cache counters.
func (s *Store) TemplateCacheStats() CacheStats { return s.reader.TemplateCacheStats() }

// Files describes the archive files of the store, oldest first.
func (s *Store) Files() []FileInfo { return s.archives.Files() }

// QuarantinedEntries returns the entries skipped during recovery under
// RecoveryQuarantine.
func (s *Store) QuarantinedEntries() []*RecoveryError {
	s.quarantineMu.Lock()
	defer s.quarantineMu.Unlock()
	return append([]*RecoveryError(nil), s.quarantined...)
}

// loadQuarantine adds the quarantine records sealed into archive footers by
// earlier recoveries.
func (s *Store) loadQuarantine() {
	s.quarantineMu.Lock()
	defer s.quarantineMu.Unlock()

	seen := make(map[model.SegmentID]struct{}, len(s.quarantined))
	for _, e := range s.quarantined {
		seen[e.ID] = struct{}{}
	}
	for _, q := range s.archives.Quarantined() {
		if _, ok := seen[q.ID]; ok {
			continue
		}
		seen[q.ID] = struct{}{}
		kind := ErrorKind(q.Kind)
		s.quarantined = append(s.quarantined, &RecoveryError{ID: q.ID, Kind: kind, Err: quarantineCause(kind, q.Reason)})
	}
}

func (s *Store) quarantinedIDs() map[model.SegmentID]struct{} {
	s.quarantineMu.Lock()
	defer s.quarantineMu.Unlock()
	ids := make(map[model.SegmentID]struct{}, len(s.quarantined))
	for _, e := range s.quarantined {
		ids[e.ID] = struct{}{}
	}
	return ids
}

// Head returns the current head record. ok is false if no head was set yet.
func (s *Store) Head(ctx context.Context) (head model.RecordID, ok bool, err error) {
	if s.opts.revisions == nil {
		return model.RecordID{}, false, ErrNoRevisions
	}
	return s.opts.revisions.Head(ctx)
}

// SetHead replaces the head with head if it is still expected. The segment
// of head must be stored. It reports whether the head was replaced.
func (s *Store) SetHead(ctx context.Context, expected, head model.RecordID) (bool, error) {
	if s.opts.revisions == nil {
		return false, ErrNoRevisions
	}
	if s.opts.readOnly {
		return false, ErrReadOnly
	}
	if !s.archives.Contains(head.Segment) {
		return false, &SegmentNotFoundError{ID: head.Segment}
	}
	return s.opts.revisions.SetHead(ctx, expected, head)
}

// BlobStore returns the external blob store, or nil.
func (s *Store) BlobStore() blobstore.BlobStore { return s.opts.blobStore }

// ReadBlob reads the external binary named by blobID.
func (s *Store) ReadBlob(ctx context.Context, blobID string) ([]byte, error) {
	if s.opts.blobStore == nil {
		return nil, ErrNoBlobStore
	}
	return blobstore.ReadAll(ctx, s.opts.blobStore, blobID)
}

// Flush syncs the active archive file.
func (s *Store) Flush() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return translateError(s.archives.Flush())
}

// Close seals the active archive file and releases all resources.
// Closing a closed store is a no-op.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	ctx := context.Background()

	var errs []error
	if err := s.archives.Close(); err != nil {
		s.logger.LogClose(ctx, "archives", err)
		errs = append(errs, err)
	}
	if s.opts.revisions != nil {
		if err := s.opts.revisions.Close(); err != nil {
			s.logger.LogClose(ctx, "revisions", err)
			errs = append(errs, err)
		}
	}

	s.segments.purge()
	s.reader.Purge()
	return errors.Join(errs...)
}

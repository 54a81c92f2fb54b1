package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/segstore/internal/fs"
	"github.com/hupe1980/segstore/model"
)

// FileInfo describes one archive file of a Set.
type FileInfo struct {
	Name    string
	Size    int64
	Entries int
	Sealed  bool
}

// Set is the ordered collection of sealed archive files of a store directory
// plus the single active Writer. Reads may run concurrently with one writer.
type Set struct {
	mu     sync.RWMutex
	fsys   fs.FileSystem
	dir    string
	opts   Options
	closed bool

	readers  []*Reader // oldest first
	pending  []int     // unsealed files awaiting recovery
	writer   *Writer
	nextFile int

	recovered []RecoveryReport
}

// HasArchives reports whether dir contains archive files.
func HasArchives(fsys fs.FileSystem, dir string) (bool, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	files, _, err := listFiles(fsys, dir)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// OpenSet opens all archive files in dir. Files without a valid footer are
// left pending until Recover is called; they are not readable before that.
func OpenSet(fsys fs.FileSystem, dir string, opts Options) (*Set, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	opts = opts.withDefaults()
	if !opts.ReadOnly {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	files, backups, err := listFiles(fsys, dir)
	if err != nil {
		return nil, err
	}

	s := &Set{fsys: fsys, dir: dir, opts: opts}

	if !opts.ReadOnly {
		files, err = s.resolveBackups(files, backups)
		if err != nil {
			return nil, err
		}
	}

	for _, n := range files {
		s.nextFile = n + 1
		r, err := OpenReader(fsys, filepath.Join(dir, FileName(n)), opts)
		if errors.Is(err, ErrUnsealed) {
			s.pending = append(s.pending, n)
			continue
		}
		if err != nil {
			_ = s.closeReaders()
			return nil, err
		}
		r.number = n
		s.readers = append(s.readers, r)
	}
	return s, nil
}

// Pending returns the names of files awaiting recovery.
func (s *Set) Pending() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.pending))
	for i, n := range s.pending {
		names[i] = FileName(n)
	}
	return names
}

// Recover rebuilds every pending file through replayer, oldest first. Sealed
// files stay readable while a replayer runs, so it may read through the Set.
func (s *Set) Recover(replayer Replayer) ([]RecoveryReport, error) {
	s.mu.RLock()
	pending := append([]int(nil), s.pending...)
	readOnly := s.opts.ReadOnly
	s.mu.RUnlock()

	if len(pending) > 0 && readOnly {
		return nil, fmt.Errorf("%w: %d file(s) need recovery", ErrReadOnly, len(pending))
	}

	var reports []RecoveryReport
	for _, n := range pending {
		path := filepath.Join(s.dir, FileName(n))
		report, err := Recover(s.fsys, path, s.opts, replayer)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)

		r, err := OpenReader(s.fsys, path, s.opts)
		if err != nil {
			return reports, err
		}
		r.number = n

		s.mu.Lock()
		s.pending = s.pending[1:]
		s.readers = append(s.readers, r)
		sort.Slice(s.readers, func(i, j int) bool { return s.readers[i].number < s.readers[j].number })
		s.recovered = append(s.recovered, report)
		s.mu.Unlock()
	}
	return reports, nil
}

// resolveBackups finishes recoveries interrupted by a crash. A backup next to
// a sealed file is stale; a backup without a sealed file is the only intact
// source and replaces whatever was written in its place.
func (s *Set) resolveBackups(files, backups []int) ([]int, error) {
	present := make(map[int]bool, len(files))
	for _, n := range files {
		present[n] = true
	}
	for _, n := range backups {
		path := filepath.Join(s.dir, FileName(n))
		bak := path + backupSuffix

		if present[n] {
			if r, err := OpenReader(s.fsys, path, s.opts); err == nil {
				_ = r.Close()
				if err := s.fsys.Remove(bak); err != nil {
					return nil, err
				}
				continue
			}
			if err := s.fsys.Remove(path); err != nil {
				return nil, err
			}
		}
		if err := s.fsys.Rename(bak, path); err != nil {
			return nil, err
		}
		if !present[n] {
			present[n] = true
			files = append(files, n)
		}
	}
	sort.Ints(files)
	return files, nil
}

func listFiles(fsys fs.FileSystem, dir string) (files, backups []int, err error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, backupSuffix) {
			if n, ok := parseFileName(strings.TrimSuffix(name, backupSuffix)); ok {
				backups = append(backups, n)
			}
			continue
		}
		if n, ok := parseFileName(name); ok {
			files = append(files, n)
		}
	}
	sort.Ints(files)
	sort.Ints(backups)
	return files, backups, nil
}

// Recovered returns a report per recovered file.
func (s *Set) Recovered() []RecoveryReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RecoveryReport(nil), s.recovered...)
}

// ReadSegment returns the newest stored copy of id.
func (s *Set) ReadSegment(id model.SegmentID) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, ErrClosed
	}
	if s.writer != nil {
		if data, ok, err := s.writer.ReadEntry(id); ok || err != nil {
			return data, ok, err
		}
	}
	for i := len(s.readers) - 1; i >= 0; i-- {
		if data, ok, err := s.readers[i].ReadEntry(id); ok || err != nil {
			return data, ok, err
		}
	}
	return nil, false, nil
}

// EntrySize returns the stored size of the newest copy of id, entry header
// included, or 0 if id is not stored.
func (s *Set) EntrySize(id model.SegmentID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.writer != nil {
		if n, ok := s.writer.entrySize(id); ok {
			return n
		}
	}
	for i := len(s.readers) - 1; i >= 0; i-- {
		if e, ok := s.readers[i].entries[id]; ok {
			return int(e.Size)
		}
	}
	return 0
}

// Contains reports whether id is stored in any file.
func (s *Set) Contains(id model.SegmentID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.writer != nil && s.writer.Contains(id) {
		return true
	}
	for _, r := range s.readers {
		if r.Contains(id) {
			return true
		}
	}
	return false
}

// SegmentIDs returns every stored segment id, oldest file first, without
// duplicates.
func (s *Set) SegmentIDs() []model.SegmentID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[model.SegmentID]struct{})
	var ids []model.SegmentID
	add := func(list []model.SegmentID) {
		for _, id := range list {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	for _, r := range s.readers {
		add(r.IDs())
	}
	if s.writer != nil {
		add(s.writer.IDs())
	}
	return ids
}

// Quarantined returns the quarantine records of all sealed files, oldest
// first. A record is dropped once a newer file holds another copy of the id.
func (s *Set) Quarantined() []QuarantinedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []QuarantinedEntry
	for i, r := range s.readers {
		for _, q := range r.Quarantined() {
			if !s.newerCopy(i, q.ID) {
				out = append(out, q)
			}
		}
	}
	return out
}

// newerCopy reports whether a file after readers[i] stores id.
func (s *Set) newerCopy(i int, id model.SegmentID) bool {
	for _, r := range s.readers[i+1:] {
		if r.Contains(id) {
			return true
		}
	}
	return s.writer != nil && s.writer.Contains(id)
}

// Graph returns the union of the graphs of all sealed files.
func (s *Set) Graph() map[model.SegmentID][]model.SegmentID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := make(map[model.SegmentID][]model.SegmentID)
	for _, r := range s.readers {
		for from, to := range r.Graph() {
			g[from] = append(g[from], to...)
		}
	}
	return g
}

// BinaryReferences returns the union of the binary references of all sealed files.
func (s *Set) BinaryReferences() *BinaryReferences {
	s.mu.RLock()
	defer s.mu.RUnlock()

	refs := NewBinaryReferences()
	for _, r := range s.readers {
		refs.Merge(r.BinaryReferences())
	}
	return refs
}

// WriteSegment appends a segment together with its outgoing edges and blob
// references, rotating the active file when it exceeds MaxFileSize.
func (s *Set) WriteSegment(id model.SegmentID, gen model.GCGeneration, data []byte, edges []model.SegmentID, blobIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.opts.ReadOnly {
		return ErrReadOnly
	}

	if s.writer != nil && s.writer.Size() >= s.opts.MaxFileSize {
		if err := s.rotate(); err != nil {
			return err
		}
	}
	if s.writer == nil {
		w, err := Create(s.fsys, filepath.Join(s.dir, FileName(s.nextFile)), s.opts)
		if err != nil {
			return err
		}
		s.writer = w
		s.nextFile++
	}

	if err := s.writer.WriteEntry(id, gen, data); err != nil {
		return err
	}
	for _, to := range edges {
		s.writer.AddGraphEdge(id, to)
	}
	for _, blobID := range blobIDs {
		s.writer.AddBinaryReference(gen, id, blobID)
	}
	return nil
}

// rotate seals the active writer and reopens it as a reader.
func (s *Set) rotate() error {
	w := s.writer
	s.writer = nil
	if err := w.Close(); err != nil {
		return err
	}
	r, err := OpenReader(s.fsys, w.Path(), s.opts)
	if err != nil {
		return err
	}
	r.number, _ = parseFileName(filepath.Base(w.Path()))
	s.readers = append(s.readers, r)
	return nil
}

// Flush syncs the active file.
func (s *Set) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if s.writer == nil {
		return nil
	}
	return s.writer.Flush()
}

// Files describes all archive files, oldest first.
func (s *Set) Files() []FileInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]FileInfo, 0, len(s.readers)+1)
	for _, r := range s.readers {
		infos = append(infos, FileInfo{Name: filepath.Base(r.Path()), Size: r.Size(), Entries: r.Count(), Sealed: true})
	}
	if s.writer != nil {
		infos = append(infos, FileInfo{Name: filepath.Base(s.writer.Path()), Size: s.writer.Size(), Entries: s.writer.Count()})
	}
	return infos
}

// Close seals the active file and closes all readers.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.writer != nil {
		if err := s.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("seal %s: %w", s.writer.Path(), err))
		}
		s.writer = nil
	}
	errs = append(errs, s.closeReaders())
	return errors.Join(errs...)
}

func (s *Set) closeReaders() error {
	var errs []error
	for _, r := range s.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", r.Path(), err))
		}
	}
	s.readers = nil
	return errors.Join(errs...)
}

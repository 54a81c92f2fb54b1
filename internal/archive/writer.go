package archive

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hupe1980/segstore/internal/fs"
	"github.com/hupe1980/segstore/internal/hash"
	"github.com/hupe1980/segstore/model"
)

// Writer appends entries to a new archive file.
type Writer struct {
	mu     sync.Mutex
	path   string
	file   fs.File
	opts   Options
	offset int64

	entries map[model.SegmentID]indexEntry
	order   []model.SegmentID
	graph   map[model.SegmentID][]model.SegmentID
	edges   map[[2]model.SegmentID]struct{}
	refs    *BinaryReferences

	quarantined []QuarantinedEntry

	err    error // sticky write error
	closed bool
}

// Create creates a new archive file at path, truncating any existing file.
func Create(fsys fs.FileSystem, path string, opts Options) (*Writer, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(encodeFileHeader()); err != nil {
		f.Close()
		return nil, err
	}

	return &Writer{
		path:    path,
		file:    f,
		opts:    opts.withDefaults(),
		offset:  fileHeaderSize,
		entries: make(map[model.SegmentID]indexEntry),
		graph:   make(map[model.SegmentID][]model.SegmentID),
		edges:   make(map[[2]model.SegmentID]struct{}),
		refs:    NewBinaryReferences(),
	}, nil
}

// Path returns the file path.
func (w *Writer) Path() string { return w.path }

// Size returns the number of bytes written so far.
func (w *Writer) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offset
}

// Count returns the number of distinct segments written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.order)
}

// WriteEntry appends a segment. Writing an id again appends a new copy that
// supersedes the previous one.
func (w *Writer) WriteEntry(id model.SegmentID, gen model.GCGeneration, data []byte) error {
	if uint64(len(data)) > uint64(^uint32(0)) {
		return fmt.Errorf("segment %s too large: %d bytes", id, len(data))
	}
	stored, c, err := compress(data, w.opts.Compression)
	if err != nil {
		return fmt.Errorf("compress segment %s: %w", id, err)
	}

	h := entryHeader{
		ID:          id,
		Generation:  gen,
		Compression: c,
		RawLen:      uint32(len(data)),
		StoredLen:   uint32(len(stored)),
		Checksum:    hash.CRC32C(stored),
	}
	buf := make([]byte, entryHeaderSize+len(stored))
	h.encode(buf)
	copy(buf[entryHeaderSize:], stored)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}

	if _, err := w.file.Write(buf); err != nil {
		w.err = fmt.Errorf("write segment %s to %s: %w", id, w.path, err)
		return w.err
	}
	if w.opts.SyncOnWrite {
		if err := w.file.Sync(); err != nil {
			w.err = fmt.Errorf("sync %s: %w", w.path, err)
			return w.err
		}
	}

	if _, ok := w.entries[id]; !ok {
		w.order = append(w.order, id)
	}
	w.entries[id] = indexEntry{
		MSB:            id.MSB,
		LSB:            id.LSB,
		Offset:         w.offset,
		Size:           uint32(len(buf)),
		Generation:     gen.Generation,
		FullGeneration: gen.FullGeneration,
		Compacted:      gen.Compacted,
	}
	w.offset += int64(len(buf))
	return nil
}

// AddGraphEdge records the edge from -> to in the file's graph.
func (w *Writer) AddGraphEdge(from, to model.SegmentID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	k := [2]model.SegmentID{from, to}
	if _, ok := w.edges[k]; ok {
		return
	}
	w.edges[k] = struct{}{}
	w.graph[from] = append(w.graph[from], to)
}

// AddBinaryReference records that segment id references blobID.
func (w *Writer) AddBinaryReference(gen model.GCGeneration, id model.SegmentID, blobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refs.Add(gen, id, blobID)
}

// Quarantine records that the entry id was kept as raw bytes only. The record
// is sealed into the footer.
func (w *Writer) Quarantine(q QuarantinedEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.quarantined = append(w.quarantined, q)
}

// Contains reports whether id was written to this file.
func (w *Writer) Contains(id model.SegmentID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.entries[id]
	return ok
}

func (w *Writer) entrySize(id model.SegmentID) (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[id]
	return int(e.Size), ok
}

// ReadEntry reads back a segment written to this file.
func (w *Writer) ReadEntry(id model.SegmentID) ([]byte, bool, error) {
	w.mu.Lock()
	e, ok := w.entries[id]
	file := w.file
	closed := w.closed
	w.mu.Unlock()

	if !ok {
		return nil, false, nil
	}
	if closed {
		return nil, false, ErrClosed
	}
	data, err := readEntryAt(file, e)
	if err != nil {
		return nil, false, fmt.Errorf("read segment %s from %s: %w", id, w.path, err)
	}
	return data, true, nil
}

// IDs returns the ids written to this file in first-write order.
func (w *Writer) IDs() []model.SegmentID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]model.SegmentID(nil), w.order...)
}

// Flush syncs written entries to stable storage.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.err != nil {
		return w.err
	}
	return w.file.Sync()
}

// Close seals the file. If a previous write failed the file is closed
// without a footer and the write error is returned.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if w.err != nil {
		_ = w.file.Close()
		return w.err
	}

	entries := make([]indexEntry, 0, len(w.order))
	for _, id := range w.order {
		entries = append(entries, w.entries[id])
	}
	buf, err := encodeFooter(newFooter(entries, w.graph, w.refs, w.quarantined))
	if err != nil {
		_ = w.file.Close()
		return err
	}
	if _, err := w.file.Write(buf); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("seal %s: %w", w.path, err)
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("sync %s: %w", w.path, err)
	}
	return w.file.Close()
}

// abandon closes the file without sealing it.
func (w *Writer) abandon() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		_ = w.file.Close()
	}
}

func readEntryAt(r io.ReaderAt, e indexEntry) ([]byte, error) {
	buf := make([]byte, e.Size)
	n, err := r.ReadAt(buf, e.Offset)
	if n < len(buf) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	h, err := decodeEntryHeader(buf)
	if err != nil {
		return nil, err
	}
	if h.ID != e.id() || uint64(entryHeaderSize)+uint64(h.StoredLen) != uint64(e.Size) {
		return nil, fmt.Errorf("%w: entry at offset %d does not match index", ErrCorrupt, e.Offset)
	}
	return decodeEntryPayload(h, buf[entryHeaderSize:])
}

func decodeEntryPayload(h entryHeader, stored []byte) ([]byte, error) {
	if hash.CRC32C(stored) != h.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch for segment %s", ErrCorrupt, h.ID)
	}
	data, err := decompress(stored, h.Compression, h.RawLen)
	if err != nil {
		return nil, fmt.Errorf("%w: segment %s: %v", ErrCorrupt, h.ID, err)
	}
	return data, nil
}

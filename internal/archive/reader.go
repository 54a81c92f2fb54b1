package archive

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/segstore/internal/fs"
	"github.com/hupe1980/segstore/internal/mmap"
	"github.com/hupe1980/segstore/model"
)

// Reader reads a sealed archive file.
type Reader struct {
	number  int // archive file number within a Set
	path    string
	size    int64
	file    fs.File
	mapping *mmap.Mapping
	ra      io.ReaderAt

	entries map[model.SegmentID]indexEntry
	order   []model.SegmentID
	graph   map[model.SegmentID][]model.SegmentID
	refs    *BinaryReferences

	quarantined []QuarantinedEntry
}

// OpenReader opens the sealed archive file at path. It returns an error
// wrapping ErrUnsealed if the file has no valid footer.
func OpenReader(fsys fs.FileSystem, path string, opts Options) (*Reader, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	r, err := openReader(f, path, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func openReader(f fs.File, path string, opts Options) (*Reader, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()

	if size < fileHeaderSize {
		// Crashed before the file header was written.
		return nil, fmt.Errorf("%s: %w", path, ErrUnsealed)
	}
	header := make([]byte, fileHeaderSize)
	if _, err := f.ReadAt(header, 0); err != nil {
		return nil, fmt.Errorf("%s: %w", path, ErrCorrupt)
	}
	if err := checkFileHeader(header); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if size < fileHeaderSize+trailerSize {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsealed)
	}

	trailer := make([]byte, trailerSize)
	if _, err := f.ReadAt(trailer, size-trailerSize); err != nil {
		return nil, err
	}
	footerLen, checksum, err := decodeTrailer(trailer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	footerOffset := size - trailerSize - int64(footerLen)
	if footerOffset < fileHeaderSize {
		return nil, fmt.Errorf("%s: %w: footer length %d", path, ErrUnsealed, footerLen)
	}
	body := make([]byte, footerLen)
	if _, err := f.ReadAt(body, footerOffset); err != nil {
		return nil, err
	}
	ft, err := decodeFooter(body, checksum)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	r := &Reader{
		path:    path,
		size:    size,
		file:    f,
		ra:      f,
		entries: make(map[model.SegmentID]indexEntry, len(ft.Entries)),
		order:   make([]model.SegmentID, 0, len(ft.Entries)),
		graph:   ft.graph(),
		refs:    ft.references(),

		quarantined: ft.quarantined(),
	}
	for _, e := range ft.Entries {
		if e.Offset < fileHeaderSize || e.Offset+int64(e.Size) > footerOffset {
			return nil, fmt.Errorf("%s: %w: entry %s outside data area", path, ErrCorrupt, e.id())
		}
		if _, ok := r.entries[e.id()]; !ok {
			r.order = append(r.order, e.id())
		}
		r.entries[e.id()] = e
	}

	if opts.MemoryMapping {
		// Mapping failures fall back to ReadAt.
		if m, err := mmap.Open(path); err == nil {
			r.mapping = m
			r.ra = m
		}
	}
	return r, nil
}

// Path returns the file path.
func (r *Reader) Path() string { return r.path }

// Size returns the file size in bytes.
func (r *Reader) Size() int64 { return r.size }

// Count returns the number of segments in the file.
func (r *Reader) Count() int { return len(r.order) }

// MemoryMapped reports whether reads are served from a memory mapping.
func (r *Reader) MemoryMapped() bool { return r.mapping != nil }

// Contains reports whether id is stored in this file.
func (r *Reader) Contains(id model.SegmentID) bool {
	_, ok := r.entries[id]
	return ok
}

// ReadEntry reads the segment id.
func (r *Reader) ReadEntry(id model.SegmentID) ([]byte, bool, error) {
	e, ok := r.entries[id]
	if !ok {
		return nil, false, nil
	}
	data, err := readEntryAt(r.ra, e)
	if err != nil {
		return nil, false, fmt.Errorf("read segment %s from %s: %w", id, r.path, err)
	}
	return data, true, nil
}

// Generation returns the generation recorded for id.
func (r *Reader) Generation(id model.SegmentID) (model.GCGeneration, bool) {
	e, ok := r.entries[id]
	return e.generation(), ok
}

// IDs returns the segment ids in file order.
func (r *Reader) IDs() []model.SegmentID {
	return append([]model.SegmentID(nil), r.order...)
}

// Graph returns the segment graph stored in the footer.
func (r *Reader) Graph() map[model.SegmentID][]model.SegmentID {
	return r.graph
}

// BinaryReferences returns the binary references stored in the footer.
func (r *Reader) BinaryReferences() *BinaryReferences {
	return r.refs
}

// Quarantined returns the entries quarantined when the file was recovered.
func (r *Reader) Quarantined() []QuarantinedEntry {
	return r.quarantined
}

// Close releases the file and any mapping.
func (r *Reader) Close() error {
	var errs []error
	if r.mapping != nil {
		errs = append(errs, r.mapping.Close())
	}
	errs = append(errs, r.file.Close())
	return errors.Join(errs...)
}

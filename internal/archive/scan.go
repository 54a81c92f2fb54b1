package archive

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/segstore/internal/fs"
)

// ScanResult describes a sequential scan of an archive file.
type ScanResult struct {
	// Entries is the number of intact entries found.
	Entries int
	// ValidBytes is the offset just past the last intact entry.
	ValidBytes int64
	// Size is the file size.
	Size int64
}

// Truncated reports whether bytes follow the last intact entry. For a sealed
// file these are the footer.
func (s ScanResult) Truncated() bool {
	return s.ValidBytes < s.Size
}

// Scan reads the entries of an archive file sequentially, sealed or not, and
// calls fn for each intact entry. Scanning stops at the first torn or corrupt
// entry; that is not an error. An error returned by fn aborts the scan and is
// returned unchanged.
func Scan(fsys fs.FileSystem, path string, fn func(Entry) error) (ScanResult, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return ScanResult{}, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return ScanResult{}, err
	}
	res := ScanResult{Size: fi.Size()}

	if res.Size < fileHeaderSize {
		return res, nil
	}
	br := bufio.NewReaderSize(io.NewSectionReader(f, 0, res.Size), 256<<10)

	header := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(br, header); err != nil {
		return res, fmt.Errorf("%s: %w: %v", path, ErrCorrupt, err)
	}
	if err := checkFileHeader(header); err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}
	res.ValidBytes = fileHeaderSize

	hbuf := make([]byte, entryHeaderSize)
	for {
		if _, err := io.ReadFull(br, hbuf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return res, nil
			}
			return res, err
		}
		h, err := decodeEntryHeader(hbuf)
		if err != nil {
			return res, nil // footer or garbage
		}
		end := res.ValidBytes + entryHeaderSize + int64(h.StoredLen)
		if end > res.Size {
			return res, nil // torn
		}
		stored := make([]byte, h.StoredLen)
		if _, err := io.ReadFull(br, stored); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return res, nil
			}
			return res, err
		}
		data, err := decodeEntryPayload(h, stored)
		if err != nil {
			return res, nil
		}

		if err := fn(Entry{ID: h.ID, Generation: h.Generation, Data: data}); err != nil {
			return res, err
		}
		res.Entries++
		res.ValidBytes = end
	}
}

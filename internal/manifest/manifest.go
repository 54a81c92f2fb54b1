package manifest

import (
	"errors"
	"io/fs"
	"path/filepath"
	"time"

	segfs "github.com/hupe1980/segstore/internal/fs"
)

// FileName is the name of the manifest file inside the store directory.
const FileName = "manifest"

// Manifest records the format version of a store.
type Manifest struct {
	StoreVersion int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// New creates a manifest for a new store at MaxStoreVersion.
func New() *Manifest {
	now := time.Now()
	return &Manifest{
		StoreVersion: MaxStoreVersion,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Load reads the manifest in dir. It returns ErrNotFound if there is none.
func Load(fsys segfs.FileSystem, dir string) (*Manifest, error) {
	data, err := segfs.ReadFile(fsys, filepath.Join(dir, FileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	m := &Manifest{}
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return m, nil
}

// Save atomically replaces the manifest in dir.
func Save(fsys segfs.FileSystem, dir string, m *Manifest) error {
	data, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	return segfs.WriteFileAtomic(fsys, filepath.Join(dir, FileName), data)
}

// GateOptions configures Gate.
type GateOptions struct {
	// Strict accepts only MaxStoreVersion.
	Strict bool
	// ReadOnly never writes the manifest.
	ReadOnly bool
	// HasData reports whether the directory already holds archive files.
	HasData bool
}

// Gate loads the manifest in dir and checks its version. A directory without
// a manifest and without data is a new store; a directory with data but no
// manifest is rejected as version 0. Unless read-only, the manifest is
// (re)written at MaxStoreVersion once the check passed.
func Gate(fsys segfs.FileSystem, dir string, opts GateOptions) (*Manifest, error) {
	m, err := Load(fsys, dir)
	switch {
	case errors.Is(err, ErrNotFound) && !opts.HasData:
		m = New()
		if opts.ReadOnly {
			return m, nil
		}
		return m, Save(fsys, dir, m)
	case errors.Is(err, ErrNotFound):
		return nil, CheckCompatible(0, opts.Strict)
	case err != nil:
		return nil, err
	}

	if err := CheckCompatible(m.StoreVersion, opts.Strict); err != nil {
		return nil, err
	}
	if opts.ReadOnly || m.StoreVersion == MaxStoreVersion {
		return m, nil
	}

	m.StoreVersion = MaxStoreVersion
	m.UpdatedAt = time.Now()
	return m, Save(fsys, dir, m)
}

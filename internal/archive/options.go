package archive

// DefaultMaxFileSize is the size at which the active archive file is sealed
// and a new one started.
const DefaultMaxFileSize = 256 << 20

// Options configures archive files.
type Options struct {
	// MaxFileSize is the rotation threshold of the active file in bytes.
	MaxFileSize int64
	// Compression is applied to entry payloads when it saves space.
	Compression Compression
	// MemoryMapping maps sealed files into memory instead of using ReadAt.
	MemoryMapping bool
	// SyncOnWrite syncs the active file after every entry.
	SyncOnWrite bool
	// ReadOnly rejects writes and crash recovery.
	ReadOnly bool
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		MaxFileSize: DefaultMaxFileSize,
		Compression: CompressionNone,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultMaxFileSize
	}
	return o
}

package segstore

import (
	"github.com/hupe1980/segstore/blobstore"
	"github.com/hupe1980/segstore/internal/archive"
	"github.com/hupe1980/segstore/internal/cache"
	"github.com/hupe1980/segstore/internal/fs"
	"github.com/hupe1980/segstore/revisions"
)

const (
	// DefaultSegmentCacheSize is the default weight limit of the segment cache in bytes.
	DefaultSegmentCacheSize = 256 << 20
	// DefaultStringCacheSize is the default weight limit of the string cache in bytes.
	DefaultStringCacheSize = 32 << 20
	// DefaultTemplateCacheSize is the default weight limit of the template cache in bytes.
	DefaultTemplateCacheSize = 8 << 20
	// DefaultCollectConcurrency is the default number of concurrent segment reads
	// during blob reference collection.
	DefaultCollectConcurrency = 4
)

// Compression selects how archive entries are compressed.
type Compression = archive.Compression

const (
	CompressionNone = archive.CompressionNone
	CompressionLZ4  = archive.CompressionLZ4
	CompressionZSTD = archive.CompressionZSTD
)

// CacheStats is a snapshot of cache counters.
type CacheStats = cache.Stats

// RecoveryPolicy decides what happens to an entry that fails to recover.
type RecoveryPolicy int

const (
	// RecoveryAbort fails Open on the first entry that cannot be recovered.
	RecoveryAbort RecoveryPolicy = iota
	// RecoveryQuarantine keeps the raw entry, skips its graph edges, blob
	// references and cache population, and continues. Skipped entries are
	// reported by Store.QuarantinedEntries.
	RecoveryQuarantine
)

func (p RecoveryPolicy) String() string {
	switch p {
	case RecoveryAbort:
		return "abort"
	case RecoveryQuarantine:
		return "quarantine"
	default:
		return "unknown"
	}
}

type options struct {
	segmentCacheSize     int64
	stringCacheSize      int64
	templateCacheSize    int64
	memoryLimit          int64
	maxFileSize          int64
	compression          Compression
	memoryMapping        bool
	syncOnWrite          bool
	strictVersion        bool
	readOnly             bool
	recoveryPolicy       RecoveryPolicy
	collectConcurrency   int
	collectIOBytesPerSec int64
	blobStore            blobstore.BlobStore
	revisions            revisions.Revisions
	fileSystem           fs.FileSystem
	metricsCollector     MetricsCollector
	logger               *Logger
}

// Option configures Open.
type Option func(*options)

// WithSegmentCacheSize sets the weight limit of the segment cache in bytes.
// Zero disables segment caching; reads then always go to the archive files.
func WithSegmentCacheSize(bytes int64) Option {
	return func(o *options) {
		o.segmentCacheSize = bytes
	}
}

// WithStringCacheSize sets the weight limit of the string cache in bytes.
func WithStringCacheSize(bytes int64) Option {
	return func(o *options) {
		o.stringCacheSize = bytes
	}
}

// WithTemplateCacheSize sets the weight limit of the template cache in bytes.
func WithTemplateCacheSize(bytes int64) Option {
	return func(o *options) {
		o.templateCacheSize = bytes
	}
}

// WithMemoryLimit bounds the memory shared by all caches of the store.
// Zero means unlimited; each cache is then only bounded by its own size.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithMaxFileSize sets the size at which the active archive file is sealed.
func WithMaxFileSize(bytes int64) Option {
	return func(o *options) {
		o.maxFileSize = bytes
	}
}

// WithCompression configures entry compression for newly written segments.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithMemoryMapping maps sealed archive files into memory.
func WithMemoryMapping(enabled bool) Option {
	return func(o *options) {
		o.memoryMapping = enabled
	}
}

// WithSyncOnWrite syncs the active archive file after every segment write.
func WithSyncOnWrite(enabled bool) Option {
	return func(o *options) {
		o.syncOnWrite = enabled
	}
}

// WithStrictVersionCheck accepts only the newest store version.
func WithStrictVersionCheck(strict bool) Option {
	return func(o *options) {
		o.strictVersion = strict
	}
}

// WithReadOnly opens the store without ever writing to its directory.
func WithReadOnly(readOnly bool) Option {
	return func(o *options) {
		o.readOnly = readOnly
	}
}

// WithRecoveryPolicy configures how entries that fail to recover are handled.
func WithRecoveryPolicy(p RecoveryPolicy) Option {
	return func(o *options) {
		o.recoveryPolicy = p
	}
}

// WithCollectConcurrency sets the number of concurrent segment reads during
// blob reference collection.
func WithCollectConcurrency(n int) Option {
	return func(o *options) {
		o.collectConcurrency = n
	}
}

// WithCollectIOLimit throttles segment reads during blob reference collection.
// Zero means unlimited.
func WithCollectIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.collectIOBytesPerSec = bytesPerSec
	}
}

// WithBlobStore configures the external blob store that holds binaries
// referenced by blob ids.
func WithBlobStore(bs blobstore.BlobStore) Option {
	return func(o *options) {
		o.blobStore = bs
	}
}

// WithRevisions configures where the head revision is kept.
func WithRevisions(r revisions.Revisions) Option {
	return func(o *options) {
		o.revisions = r
	}
}

// WithLogger sets a custom structured logger.
// Use NewJSONLogger() for JSON output, NewTextLogger() for human-readable output.
// Use NoopLogger() to disable logging entirely.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetricsCollector sets a metrics collector for observability.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// withFileSystem swaps the file system, used for fault injection in tests.
func withFileSystem(fsys fs.FileSystem) Option {
	return func(o *options) {
		o.fileSystem = fsys
	}
}

func applyOptions(opts []Option) options {
	o := options{
		segmentCacheSize:   DefaultSegmentCacheSize,
		stringCacheSize:    DefaultStringCacheSize,
		templateCacheSize:  DefaultTemplateCacheSize,
		maxFileSize:        archive.DefaultMaxFileSize,
		compression:        CompressionNone,
		recoveryPolicy:     RecoveryAbort,
		collectConcurrency: DefaultCollectConcurrency,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.collectConcurrency <= 0 {
		o.collectConcurrency = 1
	}
	if o.fileSystem == nil {
		o.fileSystem = fs.Default
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}

func (o options) archiveOptions() archive.Options {
	return archive.Options{
		MaxFileSize:   o.maxFileSize,
		Compression:   o.compression,
		MemoryMapping: o.memoryMapping,
		SyncOnWrite:   o.syncOnWrite,
		ReadOnly:      o.readOnly,
	}
}

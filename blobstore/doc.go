// Package blobstore provides access to the external binaries referenced by
// blob ids in data segments.
//
// BlobStore is the interface for reading, writing, listing and deleting
// blobs. Implementations must be safe for concurrent use.
//
// # Built-in Implementations
//
//   - MemoryStore: in-memory, for tests
//   - LocalStore: local file system with mmap support
//   - CachingStore: block-level read cache in front of any BlobStore
//   - s3.Store: Amazon S3 with range reads and managed uploads
//   - minio.Store: MinIO and other S3-compatible storage
//
// Sweep deletes the blobs that no stored segment references, given the
// result of a blob reference collection.
package blobstore

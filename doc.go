// Package segstore implements the storage core of an append-only,
// segment-based tree store.
//
// Every node and value graph of the repository is serialized into immutable
// segments identified by a random 128-bit id. Segments are appended to archive
// files in the store directory and reassembled on read. The core keeps a
// canonical identity per segment id, caches decoded segments, rebuilds the
// segment graph and the binary-reference index when it recovers archive files
// that were not closed cleanly, and enumerates the external blob references
// held by the stored segments.
//
// # Quick Start
//
//	store, err := segstore.Open("./repo")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	b := segment.NewBuilder(model.GCGeneration{Generation: 1})
//	b.WriteInlineBlobID("blob-42")
//	id := model.NewDataSegmentID()
//	if err := store.WriteSegment(id, b.Build()); err != nil {
//	    return err
//	}
//
//	seg, err := store.ReadSegment(id)
//
// # Recovery
//
// Open checks the store format version before touching any data. Archive
// files without a valid footer are then replayed entry by entry: each entry is
// re-appended to a fresh file, data segments are decoded, installed in the
// segment cache and contribute their graph edges and blob references. Replaying
// is idempotent. A malformed data segment aborts Open unless the store was
// opened with [RecoveryQuarantine].
//
// # Blob references
//
// [Store.CollectBlobReferences] reads every stored data segment and reports each
// blob id occurrence. It is a point-in-time snapshot: blob ids written
// concurrently, or not yet stored, may be missed.
package segstore

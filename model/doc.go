// Package model defines core types used throughout segstore.
//
// # Identity Types
//
//   - SegmentID: 128-bit segment identifier (two 64-bit halves)
//   - RecordID: Segment-local record address (SegmentID, record number)
//   - GCGeneration: Garbage collection epoch that produced a segment
//
// # Segment Kinds
//
// The top nibble of the least significant half classifies a segment:
//
//	0xA -> data segment (structured records, carries a GC generation)
//	0xB -> bulk segment (raw binary payload, NullGeneration)
//
// The classification is taken from the identifier alone and never re-derived
// from payload content.
package model

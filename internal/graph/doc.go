// Package graph holds the segment reference graph.
//
// Segment ids are interned to dense uint32 indices and the outgoing edges of
// every segment are stored as a roaring bitmap over those indices. Adding an
// edge is a set union: re-adding an existing edge is a no-op, which makes
// graph reconstruction during recovery idempotent.
package graph

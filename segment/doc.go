// Package segment implements the segment model: canonical segment identities,
// the binary segment format and the decoded, read-only segment view.
//
// A segment is an immutable buffer with three parts: a header carrying the
// GC generation, a table of referenced segment ids (the outgoing edges of the
// segment graph) and a record table mapping ascending record numbers to a
// type and an offset into the buffer. Bulk segments carry raw payload only and
// are never decoded structurally.
//
// Decoding is a pure function of the buffer. A decoded [Segment] may be shared
// between goroutines.
package segment

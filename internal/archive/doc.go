// Package archive implements the append-only container files that hold
// segments.
//
// A store directory contains numbered archive files (data00000.seg,
// data00001.seg, ...). Each file is a header followed by a sequence of
// entries, one per written segment:
//
//	Magic (4 bytes) "SGEN"
//	MSB, LSB (8 + 8 bytes)
//	Generation, FullGeneration (4 + 4 bytes)
//	Flags (1 byte) - bit 0: compacted
//	Compression (1 byte)
//	RawLength, StoredLength (4 + 4 bytes)
//	Checksum (4 bytes) - CRC32-C of the stored bytes
//	Stored bytes
//
// Closing a Writer seals the file: a msgpack encoded footer holding the entry
// index, the segment graph, the binary references and the quarantine records
// of the file is appended,
// followed by a fixed trailer (footer length, footer CRC32-C, magic "SGAX").
//
// A file without a valid trailer was not closed cleanly. When a Set opens such
// a file it is moved aside to "<name>.bak", every intact entry is handed to a
// Replayer which re-appends it to a fresh file under the original name, and the
// fresh file is sealed. The backup is removed only after the new file is
// sealed, so a crash during recovery is recovered again from the same source.
package archive

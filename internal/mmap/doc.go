// Package mmap maps sealed archive files read-only into memory.
//
// A [Mapping] owns the mapped bytes; slices handed out by [Mapping.Bytes] are
// valid until [Mapping.Close]. On platforms without mmap support the file is
// read into the heap instead, so callers never need a second code path.
package mmap

// Package fs provides filesystem abstractions for testability and fault injection.
//
//   - [File]: an open file with read/write/sync capabilities
//   - [FileSystem]: open, remove, rename, stat, mkdir, readdir
//   - [LocalFS]: the os-backed implementation ([Default])
//   - [FaultyFS]: wraps another FileSystem and injects errors per file name
//
// Tests inject [FaultyFS] to simulate failures on the archive write path:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule("data00001", fs.Fault{FailAfterBytes: 0})
//
// The package intentionally has no context.Context parameters: local file
// operations are not interruptible at the syscall level.
package fs

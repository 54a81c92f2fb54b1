// Package hash provides the checksums used by the on-disk formats.
//
// CRC32-Castagnoli protects archive entries, archive footers and the manifest.
// The Go runtime uses SSE4.2 / ARMv8 CRC instructions for this polynomial when
// available, so checksumming stays off the profile even on the recovery path.
package hash

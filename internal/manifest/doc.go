// Package manifest stores the store format version and implements the version
// gate evaluated at open.
//
// The manifest is a small binary file ("manifest") in the store directory:
//
//	Magic (4 bytes) "SGMF"
//	FileFormat (4 bytes)
//	Checksum (4 bytes) - CRC32-C of payload
//	PayloadLength (4 bytes)
//	Payload:
//	  StoreVersion (4 bytes, signed)
//	  CreatedAt (8 bytes) - UnixNano
//	  UpdatedAt (8 bytes) - UnixNano
//
// A store written by a version of this module outside [MinStoreVersion,
// MaxStoreVersion] is rejected before any recovery takes place.
package manifest

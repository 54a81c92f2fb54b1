package manifest

const (
	// MinStoreVersion is the oldest store version this module can read.
	MinStoreVersion = 1
	// MaxStoreVersion is the store version this module writes.
	MaxStoreVersion = 2
)

// CheckCompatible returns nil if version is readable. When strict is set only
// MaxStoreVersion is accepted.
func CheckCompatible(version int, strict bool) error {
	minVersion := MinStoreVersion
	if strict {
		minVersion = MaxStoreVersion
	}
	if version < minVersion || version > MaxStoreVersion {
		return &IncompatibleVersionError{Version: version, Min: minVersion, Max: MaxStoreVersion}
	}
	return nil
}

package manifest

import (
	"errors"
	"fmt"
)

var (
	// ErrIncompatibleVersion is returned when the store version is not supported.
	ErrIncompatibleVersion = errors.New("incompatible store version")

	// ErrNotFound is returned when the manifest file does not exist.
	ErrNotFound = errors.New("manifest not found")

	// ErrCorrupt is returned when the manifest fails validation.
	ErrCorrupt = errors.New("corrupt manifest")
)

// IncompatibleVersionError carries the offending version and the accepted bounds.
type IncompatibleVersionError struct {
	Version int
	Min     int
	Max     int
}

func (e *IncompatibleVersionError) Error() string {
	if e.Version == 0 {
		return fmt.Sprintf("store version unknown: manifest missing, supported versions are %d to %d", e.Min, e.Max)
	}
	return fmt.Sprintf("store version %d not supported, supported versions are %d to %d", e.Version, e.Min, e.Max)
}

// Unwrap returns ErrIncompatibleVersion.
func (e *IncompatibleVersionError) Unwrap() error {
	return ErrIncompatibleVersion
}

package storage

import (
	"errors"
	"fmt"
)

// Cache file errors
var (
	ErrUnreadableVersion  = errors.New("cache file version tag is missing or unreadable")
	ErrUnsupportedVersion = errors.New("cache file version is newer than supported")
	ErrStoreClosed        = errors.New("bootstrap cache store is closed")
)

// DecodeError reports a cache file that cannot be used. The file is left on
// disk untouched.
type DecodeError struct {
	Path    string
	Version uint
	Cause   error
	// BackupPath is where a copy of the file was saved, empty if none was made
	BackupPath string
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	prefix := "failed to decode bootstrap cache"
	if e.Path != "" {
		prefix = fmt.Sprintf("%s %s", prefix, e.Path)
	}
	if errors.Is(e.Cause, ErrUnsupportedVersion) {
		return fmt.Sprintf("%s: version %d (supported up to %d): %v", prefix, e.Version, CurrentVersion, e.Cause)
	}
	return fmt.Sprintf("%s: %v", prefix, e.Cause)
}

// Unwrap returns the underlying error
func (e *DecodeError) Unwrap() error {
	return e.Cause
}

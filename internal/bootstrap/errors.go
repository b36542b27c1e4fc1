package bootstrap

import (
	"errors"
	"fmt"
)

// ErrPeersNotObtained is matched by the terminal acquisition failure
var ErrPeersNotObtained = errors.New("peers not obtained")

// PeersNotObtainedError means every bootstrap source was exhausted. Causes
// holds the combined per-source errors and may be nil when every source was
// simply empty.
type PeersNotObtainedError struct {
	Causes error
}

// Error implements the error interface
func (e *PeersNotObtainedError) Error() string {
	if e.Causes == nil {
		return "peers not obtained: every bootstrap source was empty"
	}
	return fmt.Sprintf("peers not obtained: every bootstrap source exhausted: %v", e.Causes)
}

// Unwrap returns the combined source errors
func (e *PeersNotObtainedError) Unwrap() error {
	return e.Causes
}

// Is matches ErrPeersNotObtained
func (e *PeersNotObtainedError) Is(target error) bool {
	return target == ErrPeersNotObtained
}

package types

import (
	"errors"
	"fmt"
)

// ErrInvalidPeerAddr is matched by every address validation failure
var ErrInvalidPeerAddr = errors.New("invalid peer address")

// InvalidPeerAddrError describes why a single address was rejected
type InvalidPeerAddrError struct {
	Address string
	Reason  string
	Cause   error
}

// Error implements the error interface
func (e *InvalidPeerAddrError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid peer address %q: %s: %v", e.Address, e.Reason, e.Cause)
	}
	return fmt.Sprintf("invalid peer address %q: %s", e.Address, e.Reason)
}

// Unwrap returns the underlying error
func (e *InvalidPeerAddrError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrInvalidPeerAddr) hold for every instance
func (e *InvalidPeerAddrError) Is(target error) bool {
	return target == ErrInvalidPeerAddr
}

func newInvalidPeerAddr(addr, reason string, cause error) *InvalidPeerAddrError {
	return &InvalidPeerAddrError{Address: addr, Reason: reason, Cause: cause}
}

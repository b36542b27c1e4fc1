package network

import (
	"errors"
	"fmt"
)

// Common network errors
var (
	ErrInvalidAddress = errors.New("invalid multiaddr format")
	ErrSelfDial       = errors.New("refusing to dial the local peer")
	ErrInvalidConfig  = errors.New("invalid network configuration")
)

// NetworkError represents a network-specific error with additional context
type NetworkError struct {
	Operation string
	Cause     error
	Context   map[string]interface{}
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	if len(e.Context) > 0 {
		return fmt.Sprintf("network error in %s: %v (context: %v)", e.Operation, e.Cause, e.Context)
	}
	return fmt.Sprintf("network error in %s: %v", e.Operation, e.Cause)
}

// Unwrap returns the underlying error
func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// NewNetworkError creates a new network error with context
func NewNetworkError(operation string, cause error, context map[string]interface{}) *NetworkError {
	return &NetworkError{
		Operation: operation,
		Cause:     cause,
		Context:   context,
	}
}

// ConnectionError represents a failed dial to a bootstrap peer
type ConnectionError struct {
	PeerID  string
	Address string
	Cause   error
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error with peer %s at %s: %v", e.PeerID, e.Address, e.Cause)
}

// Unwrap returns the underlying error
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

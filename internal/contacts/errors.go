package contacts

import (
	"errors"
	"fmt"
)

// Common fetch errors
var (
	ErrNetworkContactsUnretrievable = errors.New("network contacts unretrievable")
	ErrNoMultiAddrObtained          = errors.New("no multiaddr obtained from network contacts")
	ErrNoEndpoints                  = errors.New("no network contacts endpoints configured")
)

// NetworkContactsUnretrievableError reports an endpoint that failed every attempt
type NetworkContactsUnretrievableError struct {
	Endpoint string
	Attempts int
	Cause    error
}

// Error implements the error interface
func (e *NetworkContactsUnretrievableError) Error() string {
	return fmt.Sprintf("network contacts unretrievable from %s after %d attempts: %v", e.Endpoint, e.Attempts, e.Cause)
}

// Unwrap returns the underlying error
func (e *NetworkContactsUnretrievableError) Unwrap() error {
	return e.Cause
}

// Is matches ErrNetworkContactsUnretrievable
func (e *NetworkContactsUnretrievableError) Is(target error) bool {
	return target == ErrNetworkContactsUnretrievable
}

// NoMultiAddrObtainedError reports an endpoint that answered with nothing usable
type NoMultiAddrObtainedError struct {
	Endpoint string
	// Dropped counts entries that were present but failed validation
	Dropped int
}

// Error implements the error interface
func (e *NoMultiAddrObtainedError) Error() string {
	return fmt.Sprintf("no multiaddr obtained from network contacts %s (%d invalid entries)", e.Endpoint, e.Dropped)
}

// Is matches ErrNoMultiAddrObtained
func (e *NoMultiAddrObtainedError) Is(target error) bool {
	return target == ErrNoMultiAddrObtained
}

// statusError is a non-2xx response, treated as a failed attempt
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.code)
}

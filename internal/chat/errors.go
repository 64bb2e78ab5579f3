package chat

import (
	"errors"
	"fmt"
)

// Error taxonomy for collaborator failures. Use errors.Is to check.
var (
	// ErrTransport means the backend was unreachable or failed. Timeouts count.
	ErrTransport = errors.New("transport failure")

	// ErrNotFound means the subject does not exist.
	ErrNotFound = errors.New("subject not found")

	// ErrValidation means input was rejected, locally or by the backend.
	ErrValidation = errors.New("validation failed")
)

// Session lifecycle errors.
var (
	ErrNotReady           = errors.New("session not initialized")
	ErrAlreadyInitialized = errors.New("session already initialized")
	ErrBusy               = errors.New("operation already in flight")
	ErrTornDown           = errors.New("session torn down")
)

// classify makes sure err carries one of the taxonomy errors.
// Anything unrecognised, including context cancellation, is a transport failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransport) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// Recoverable reports whether err is a session-scoped failure the caller can retry.
func Recoverable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrBusy)
}

// Package sessionstore persists HTTP session state into a remote key-value cache.
//
// The root package only carries the error taxonomy shared by the marshal, cache
// and session packages. Callers match errors with errors.Is.
package sessionstore

import "errors"

// Common errors for session store operations.
var (
	// ErrConfiguration is fatal and reported at construction time.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrConnectivity reports that the remote cache could not be read.
	ErrConnectivity = errors.New("remote cache unreachable")

	// ErrWriteFailed reports that a save or delete could not be written to the remote cache.
	ErrWriteFailed = errors.New("remote cache write failed")

	// ErrDeserialization reports stored bytes that no codec layer can decode.
	ErrDeserialization = errors.New("deserialization failed")

	// ErrIdentifierExhausted reports that no unused session identifier was found.
	ErrIdentifierExhausted = errors.New("session identifier attempts exhausted")
)

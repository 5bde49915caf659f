// Package common defines the sentinel errors shared across the daemon's
// layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// ErrValidation means a required input was missing or malformed.
	// Resolved locally, before any network call.
	ErrValidation = errors.New("validation error")

	// ErrAuth means the upstream rejected the API token.
	ErrAuth = errors.New("authentication failed")

	// ErrFetch means the upstream answered with a non-2xx status or an
	// unparseable payload while listing messages.
	ErrFetch = errors.New("upstream fetch failed")

	// ErrNetwork means the HTTP transport itself failed.
	ErrNetwork = errors.New("network error")

	// ErrCapacity means the auto-save watch list is at its entry limit.
	ErrCapacity = errors.New("watch list at capacity")
)

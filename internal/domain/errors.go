package domain

import "errors"

// Error kinds surfaced by catalog operations. Callers match them with
// errors.Is; the wrapped message carries the detail.
var (
	// ErrValidation indicates empty or malformed input.
	ErrValidation = errors.New("invalid input")

	// ErrDuplicate indicates a uniqueness violation found on read-before-write.
	ErrDuplicate = errors.New("already exists")

	// ErrNotFound indicates a referenced subject, resource or task is absent.
	ErrNotFound = errors.New("not found")

	// ErrStore indicates the underlying document store call failed.
	ErrStore = errors.New("store failure")
)

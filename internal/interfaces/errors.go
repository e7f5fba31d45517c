package interfaces

import "errors"

// Error kinds surfaced across service boundaries. Callers discriminate with
// errors.Is; wrapping preserves the kind.
var (
	// ErrNotFound - the referenced library, post, group, tag, or file does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput - malformed path, invalid cron, empty name, or a value
	// outside its allowed range. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict - unique constraint violation (duplicate tag name,
	// duplicate post-tag link) or a job of the same key already running.
	ErrConflict = errors.New("conflict")

	// ErrBackend - the media backend returned no output, empty output, or
	// failed outright. The affected item is counted as failed and the run
	// continues.
	ErrBackend = errors.New("media backend failure")
)

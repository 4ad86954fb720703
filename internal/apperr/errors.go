// Package apperr defines the sentinel errors shared across archlens.
package apperr

import "errors"

var (
	// ErrConfig marks non-retryable configuration problems: bad paths,
	// unparsable repository URLs, unsupported enum values.
	ErrConfig = errors.New("configuration error")
	// ErrNotFound is returned when a baseline or graph entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrCanceled wraps context cancellation so callers can tell an aborted
	// run from a failed one.
	ErrCanceled = errors.New("canceled")
)

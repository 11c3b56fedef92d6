package domain

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound marks a referenced record that does not exist in the
	// search index or the state store.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized marks a request with a missing or wrong shared secret.
	ErrUnauthorized = errors.New("invalid credentials")
)

// ValidationError reports missing or malformed caller input.
type ValidationError struct {
	Message string
	Missing []string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

// UpstreamError wraps a failed call to an external system (feed, page,
// search index, state store). Upstream failures abort the unit of work they
// belong to; the next scheduled invocation or caller retry recovers.
type UpstreamError struct {
	System string
	Err    error
}

func (e *UpstreamError) Error() string {
	return e.System + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

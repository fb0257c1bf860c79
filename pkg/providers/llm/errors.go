package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when the backend has no usable credentials.
	ErrNotConfigured = errors.New("llm provider not configured")

	// ErrEmptyResponse is returned when the backend answered without content.
	ErrEmptyResponse = errors.New("llm returned no content")
)

// StatusError is a non-200 answer from a chat backend.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

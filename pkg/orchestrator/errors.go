package orchestrator

import "errors"

var (
	// ErrEmptyTranscription is returned when transcription produces empty text
	ErrEmptyTranscription = errors.New("transcription returned empty text")

	// ErrNilProvider is returned when a factory produced a nil handle
	ErrNilProvider = errors.New("required provider is nil")

	// ErrStopped is returned by calls made after Run has returned
	ErrStopped = errors.New("orchestrator stopped")

	// ErrAlreadyRunning is returned when Run is called twice
	ErrAlreadyRunning = errors.New("orchestrator already running")
)

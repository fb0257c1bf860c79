package listen

import "errors"

var (
	// ErrMicrophoneBusy is returned when a listen is requested while another
	// one owns the microphone.
	ErrMicrophoneBusy = errors.New("microphone is busy")

	// ErrMicrophoneUnavailable is permanent: no capture device could be
	// opened.
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")

	// ErrNotConfigured is returned when no transcription backend is set up.
	ErrNotConfigured = errors.New("speech to text not configured")
)

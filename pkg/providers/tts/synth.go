package tts

import (
	"context"
	"errors"

	"github.com/lokutor-ai/companion/pkg/audio"
)

var (
	// ErrNoAudio is returned when synthesis succeeded but produced nothing.
	ErrNoAudio = errors.New("synthesis returned no audio")

	// ErrNoEngine is returned when no local speech engine is installed.
	ErrNoEngine = errors.New("no local speech engine found")
)

// Synthesizer turns text into mono 16-bit PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, audio.Format, error)
	Name() string
}

// Player renders PCM on an output device.
type Player interface {
	Play(ctx context.Context, pcm []byte, sampleRate int) error
}

package tts

import (
	"context"
	"errors"
	"io"

	"github.com/lokutor-ai/companion/pkg/orchestrator"
)

// Speaker adapts a Synthesizer and a Player to the orchestrator's
// TTSProvider contract. A Speaker without a synthesizer is intentionally
// silent and always reports success.
type Speaker struct {
	synth  Synthesizer
	player Player
	logger orchestrator.Logger
}

func NewSpeaker(synth Synthesizer, player Player, logger orchestrator.Logger) *Speaker {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &Speaker{synth: synth, player: player, logger: logger}
}

func (s *Speaker) Name() string {
	if s.synth == nil {
		return "tts-none"
	}
	return s.synth.Name()
}

func (s *Speaker) Speak(ctx context.Context, text string) bool {
	if s.synth == nil {
		s.logger.Debug("TTS disabled, not speaking", "length", len(text))
		return true
	}
	if s.player == nil {
		s.logger.Warn("no audio output device, cannot speak")
		return false
	}

	pcm, format, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		s.logger.Error("speech synthesis failed", "provider", s.synth.Name(), "error", err)
		return false
	}
	if len(pcm) == 0 {
		s.logger.Error("speech synthesis returned nothing", "provider", s.synth.Name())
		return false
	}
	if err := s.player.Play(ctx, pcm, format.SampleRate); err != nil {
		s.logger.Error("audio playback failed", "error", err)
		return false
	}
	return true
}

// Close releases the synthesizer's connection and the output device.
func (s *Speaker) Close() error {
	var errs []error
	for _, h := range []interface{}{s.synth, s.player} {
		if c, ok := h.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

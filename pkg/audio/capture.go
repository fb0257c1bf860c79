package audio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrWaitTimeout is returned when no speech started within the listen
	// timeout.
	ErrWaitTimeout = errors.New("no speech detected before timeout")

	// ErrNoMicrophone is returned when neither the configured nor the default
	// capture device can be opened.
	ErrNoMicrophone = errors.New("no microphone available")
)

// RecordOptions bounds a single utterance.
type RecordOptions struct {
	// Timeout is how long to wait for speech to start.
	Timeout time.Duration
	// PhraseLimit caps the length of the utterance once it started.
	PhraseLimit time.Duration
	// SilenceLimit is the trailing silence that ends the utterance.
	SilenceLimit time.Duration
	// Preroll keeps this much audio from before speech was confirmed.
	Preroll time.Duration
}

func DefaultRecordOptions() RecordOptions {
	return RecordOptions{
		Timeout:      7 * time.Second,
		PhraseLimit:  15 * time.Second,
		SilenceLimit: 800 * time.Millisecond,
		Preroll:      300 * time.Millisecond,
	}
}

// Frame is one chunk of captured PCM stamped with its arrival time.
type Frame struct {
	PCM []byte
	At  time.Time
}

// CollectPhrase reads frames until the VAD reports the end of an utterance,
// the phrase limit is reached, or the listen timeout expires before speech
// starts. It returns the PCM of the utterance including a short preroll.
func CollectPhrase(ctx context.Context, frames <-chan Frame, vad *RMSVAD, opts RecordOptions, sampleRate int) ([]byte, error) {
	prerollBytes := int(opts.Preroll.Seconds()*float64(sampleRate)) * bytesPerSample
	var (
		preroll []byte
		phrase  []byte
		started time.Time
		begun   time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case f, ok := <-frames:
			if !ok {
				if len(phrase) > 0 {
					return phrase, nil
				}
				return nil, ErrNoMicrophone
			}
			if begun.IsZero() {
				begun = f.At
			}

			event := vad.Process(f.PCM, f.At)
			if started.IsZero() {
				if event == VADSpeechStart {
					started = f.At
					phrase = append(phrase, preroll...)
					phrase = append(phrase, f.PCM...)
					preroll = nil
					continue
				}
				preroll = append(preroll, f.PCM...)
				if over := len(preroll) - prerollBytes; over > 0 {
					preroll = preroll[over:]
				}
				if opts.Timeout > 0 && f.At.Sub(begun) >= opts.Timeout {
					return nil, ErrWaitTimeout
				}
				continue
			}

			phrase = append(phrase, f.PCM...)
			if event == VADSpeechEnd {
				return phrase, nil
			}
			if opts.PhraseLimit > 0 && f.At.Sub(started) >= opts.PhraseLimit {
				return phrase, nil
			}
		}
	}
}

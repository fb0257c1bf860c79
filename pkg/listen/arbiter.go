package listen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/lokutor-ai/companion/pkg/audio"
)

type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}

// Recorder captures one utterance as 16-bit mono PCM.
type Recorder interface {
	Record(ctx context.Context) ([]byte, error)
	SampleRate() int
}

// Transcriber turns PCM into text.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error)
	Name() string
}

type mode int

const (
	modeIdle mode = iota
	modeBackground
	modeOnDemand
)

// retryDelay spaces background attempts after a transient recording error.
const retryDelay = time.Second

// Arbiter owns the microphone on behalf of the orchestrator. Background and
// on-demand listening are mutually exclusive; the loser of a race gets
// ErrMicrophoneBusy.
type Arbiter struct {
	rec    Recorder
	tr     Transcriber
	logger Logger

	mu     sync.Mutex
	mode   mode
	cancel context.CancelFunc
	done   chan struct{}
}

// NewArbiter builds an arbiter. A nil recorder means the microphone could
// not be opened; a nil transcriber means no STT backend is configured.
func NewArbiter(rec Recorder, tr Transcriber, logger Logger) *Arbiter {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Arbiter{rec: rec, tr: tr, logger: logger}
}

func (a *Arbiter) Name() string {
	if a.tr == nil {
		return "stt-none"
	}
	return a.tr.Name()
}

func (a *Arbiter) ready() error {
	if a.rec == nil {
		return ErrMicrophoneUnavailable
	}
	if a.tr == nil {
		return ErrNotConfigured
	}
	return nil
}

// ListenOnDemand records and transcribes a single utterance.
func (a *Arbiter) ListenOnDemand(ctx context.Context) (string, error) {
	if err := a.ready(); err != nil {
		return "", err
	}

	a.mu.Lock()
	if a.mode != modeIdle {
		a.mu.Unlock()
		return "", ErrMicrophoneBusy
	}
	a.mode = modeOnDemand
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.mode = modeIdle
		a.mu.Unlock()
	}()

	a.logger.Info("listening for voice input")
	return a.listenOnce(ctx)
}

func (a *Arbiter) listenOnce(ctx context.Context) (string, error) {
	pcm, err := a.rec.Record(ctx)
	if err != nil {
		if errors.Is(err, audio.ErrNoMicrophone) {
			return "", fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
		}
		return "", err
	}
	a.logger.Debug("transcribing audio", "bytes", len(pcm))
	text, err := a.tr.Transcribe(ctx, pcm, a.rec.SampleRate())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// StartBackgroundListening records utterances in a loop on its own goroutine
// and passes every non-empty transcription to onText. If the loop ends on
// its own, for example because the microphone went away, the arbiter goes
// back to idle and onStopped receives the cause. onStopped is not called
// when the loop ends through StopBackgroundListening or ctx.
func (a *Arbiter) StartBackgroundListening(ctx context.Context, onText func(string), onStopped func(error)) error {
	if err := a.ready(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.mode {
	case modeBackground:
		return nil
	case modeOnDemand:
		return ErrMicrophoneBusy
	}

	bgCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.mode = modeBackground
	a.cancel = cancel
	a.done = done

	go func() {
		err := a.backgroundLoop(bgCtx, onText)
		requested := bgCtx.Err() != nil
		cancel()

		a.mu.Lock()
		owned := a.done == done
		if owned {
			a.mode = modeIdle
			a.cancel, a.done = nil, nil
		}
		a.mu.Unlock()
		close(done)

		if owned && !requested && onStopped != nil {
			onStopped(err)
		}
	}()
	a.logger.Info("background listening started", "stt", a.Name())
	return nil
}

func (a *Arbiter) backgroundLoop(ctx context.Context, onText func(string)) error {
	for ctx.Err() == nil {
		text, err := a.listenOnce(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, audio.ErrWaitTimeout):
			continue
		case errors.Is(err, ErrMicrophoneUnavailable):
			a.logger.Warn("background listening stopped, microphone unavailable", "error", err)
			return err
		case err != nil:
			a.logger.Warn("background transcription failed", "error", err)
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if text != "" {
			onText(text)
		}
	}
	return ctx.Err()
}

// StopBackgroundListening returns once the background goroutine has exited.
func (a *Arbiter) StopBackgroundListening() {
	a.mu.Lock()
	if a.mode != modeBackground {
		a.mu.Unlock()
		return
	}
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.mu.Unlock()

	cancel()
	<-done

	a.mu.Lock()
	a.mode = modeIdle
	a.mu.Unlock()
	a.logger.Info("background listening stopped")
}

func (a *Arbiter) IsListening() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode != modeIdle
}

// Close stops background listening and releases the recorder.
func (a *Arbiter) Close() error {
	a.StopBackgroundListening()
	if c, ok := a.rec.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

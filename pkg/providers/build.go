// Package providers turns a settings snapshot into one generation of
// provider handles for the orchestrator.
package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lokutor-ai/companion/pkg/audio"
	"github.com/lokutor-ai/companion/pkg/listen"
	"github.com/lokutor-ai/companion/pkg/orchestrator"
	"github.com/lokutor-ai/companion/pkg/providers/llm"
	"github.com/lokutor-ai/companion/pkg/providers/stt"
	"github.com/lokutor-ai/companion/pkg/providers/tts"
	"github.com/lokutor-ai/companion/pkg/settings"
)

// Builder creates provider handles. Audio devices are opened lazily, on the
// first playback or recording, so building never blocks on hardware.
type Builder struct {
	logger     orchestrator.Logger
	openPlayer func() (tts.Player, error)
	openMic    func(index *int, opts audio.RecordOptions, logger audio.Logger) (listen.Recorder, error)
}

func NewBuilder(logger orchestrator.Logger) *Builder {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &Builder{
		logger: logger,
		openPlayer: func() (tts.Player, error) {
			player, err := audio.NewPlayer()
			if err != nil {
				return nil, err
			}
			return player, nil
		},
		openMic: func(index *int, opts audio.RecordOptions, logger audio.Logger) (listen.Recorder, error) {
			mic, err := audio.OpenMicrophone(index, opts, logger)
			if err != nil {
				return nil, err
			}
			return mic, nil
		},
	}
}

// Build satisfies orchestrator.ProviderFactory.
func (b *Builder) Build(s settings.Settings) orchestrator.Providers {
	p := orchestrator.Providers{
		AI:  b.buildAI(s),
		TTS: b.buildTTS(s),
		STT: b.buildSTT(s),
	}
	b.logger.Info("providers built", "ai", p.AI.Name(), "tts", p.TTS.Name(), "stt", p.STT.Name())
	return p
}

func (b *Builder) buildAI(s settings.Settings) *llm.Responder {
	switch strings.ToLower(s.AI.Provider) {
	case settings.ProviderOllama:
		return llm.NewResponder(llm.NewOllamaLLM(s.AI.Ollama.Host, s.AI.Ollama.Model), b.logger)
	case settings.ProviderOpenAI, "":
		if settings.IsPlaceholder(s.AI.OpenAI.APIKey) {
			b.logger.Warn("OpenAI API key is missing")
		}
		return llm.NewResponder(llm.NewOpenAILLM(s.AI.OpenAI.APIKey, s.AI.OpenAI.Model), b.logger)
	default:
		b.logger.Warn("unknown AI provider", "provider", s.AI.Provider)
		return llm.NewResponder(nil, b.logger)
	}
}

func (b *Builder) buildTTS(s settings.Settings) *tts.Speaker {
	var synth tts.Synthesizer
	switch strings.ToLower(s.Voice.TTSProvider) {
	case settings.TTSElevenLabs:
		if settings.IsPlaceholder(s.AI.ElevenLabsAPIKey) {
			b.logger.Warn("ElevenLabs API key is missing, TTS will stay silent")
			break
		}
		synth = tts.NewElevenLabsTTS(s.AI.ElevenLabsAPIKey, s.Voice.ElevenLabs.VoiceID)
	case settings.TTSLokutor:
		if settings.IsPlaceholder(s.AI.LokutorAPIKey) {
			b.logger.Warn("Lokutor API key is missing, TTS will stay silent")
			break
		}
		synth = tts.NewLokutorTTS(s.AI.LokutorAPIKey, s.Voice.Lokutor.Voice, s.Voice.Lokutor.Language)
	case settings.TTSLocal:
		synth = tts.NewLocalTTS(s.Voice.LocalTTS.VoiceID)
	case settings.TTSNone, "":
	default:
		b.logger.Warn("unknown TTS provider", "provider", s.Voice.TTSProvider)
	}

	if synth == nil {
		return tts.NewSpeaker(nil, nil, b.logger)
	}
	return tts.NewSpeaker(synth, &lazyPlayer{open: b.openPlayer}, b.logger)
}

func (b *Builder) buildSTT(s settings.Settings) *listen.Arbiter {
	var tr listen.Transcriber
	switch strings.ToLower(s.AudioInput.STTProvider) {
	case settings.STTOpenAI, "":
		if settings.IsPlaceholder(s.AI.OpenAI.APIKey) {
			b.logger.Warn("OpenAI API key is missing, voice input is unavailable")
			break
		}
		tr = stt.NewOpenAISTT(s.AI.OpenAI.APIKey, "", s.AudioInput.Language)
	case settings.STTNone:
	default:
		b.logger.Warn("unknown STT provider", "provider", s.AudioInput.STTProvider)
	}

	var index *int
	if s.AudioInput.MicDeviceIndex != nil {
		i := *s.AudioInput.MicDeviceIndex
		index = &i
	}
	rec := &lazyRecorder{
		index:  index,
		opts:   audio.DefaultRecordOptions(),
		logger: b.logger,
		open:   b.openMic,
	}
	return listen.NewArbiter(rec, tr, b.logger)
}

// errHandleClosed is returned by a lazy device handle used after Close.
var errHandleClosed = errors.New("device handle closed")

// lazyPlayer opens the output device on first use. Close may race with a
// Play that is still opening the device; whichever runs second closes it.
type lazyPlayer struct {
	open func() (tts.Player, error)

	mu     sync.Mutex
	player tts.Player
	err    error
	opened bool
	closed bool
}

func (p *lazyPlayer) get() (tts.Player, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errHandleClosed
	}
	if !p.opened {
		p.opened = true
		p.player, p.err = p.open()
	}
	return p.player, p.err
}

func (p *lazyPlayer) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	player, err := p.get()
	if err != nil {
		return err
	}
	return player.Play(ctx, pcm, sampleRate)
}

func (p *lazyPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if c, ok := p.player.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// lazyRecorder opens and calibrates the microphone on the first recording.
// A failure to open is permanent for the lifetime of this handle.
type lazyRecorder struct {
	index  *int
	opts   audio.RecordOptions
	logger audio.Logger
	open   func(index *int, opts audio.RecordOptions, logger audio.Logger) (listen.Recorder, error)

	mu     sync.Mutex
	rec    listen.Recorder
	err    error
	ran    bool
	closed bool
}

func (r *lazyRecorder) recorder() (listen.Recorder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("%w: %v", audio.ErrNoMicrophone, errHandleClosed)
	}
	if !r.ran {
		r.ran = true
		r.rec, r.err = r.open(r.index, r.opts, r.logger)
		if r.err != nil {
			r.logger.Warn("could not open any microphone, voice input disabled", "error", r.err)
			r.err = fmt.Errorf("%w: %v", audio.ErrNoMicrophone, r.err)
		}
	}
	return r.rec, r.err
}

func (r *lazyRecorder) Record(ctx context.Context) ([]byte, error) {
	rec, err := r.recorder()
	if err != nil {
		return nil, err
	}
	return rec.Record(ctx)
}

func (r *lazyRecorder) SampleRate() int {
	return audio.SampleRate
}

func (r *lazyRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if c, ok := r.rec.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

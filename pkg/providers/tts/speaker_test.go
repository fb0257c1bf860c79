package tts

import (
	"context"
	"errors"
	"testing"

	"github.com/lokutor-ai/companion/pkg/audio"
	"github.com/stretchr/testify/require"
)

type stubSynth struct {
	pcm    []byte
	err    error
	closed bool
}

func (s *stubSynth) Synthesize(ctx context.Context, text string) ([]byte, audio.Format, error) {
	return s.pcm, audio.Format{SampleRate: 24000, Channels: 1}, s.err
}

func (s *stubSynth) Name() string { return "stub" }

func (s *stubSynth) Close() error {
	s.closed = true
	return nil
}

type stubPlayer struct {
	played     []byte
	sampleRate int
	err        error
}

func (p *stubPlayer) Play(ctx context.Context, pcm []byte, sampleRate int) error {
	p.played, p.sampleRate = pcm, sampleRate
	return p.err
}

func TestSpeaker(t *testing.T) {
	synth := &stubSynth{pcm: []byte{1, 2}}
	player := &stubPlayer{}
	s := NewSpeaker(synth, player, nil)

	require.True(t, s.Speak(context.Background(), "hello"))
	require.Equal(t, []byte{1, 2}, player.played)
	require.Equal(t, 24000, player.sampleRate)
	require.Equal(t, "stub", s.Name())

	require.NoError(t, s.Close())
	require.True(t, synth.closed)
}

func TestSpeakerDisabledReportsSuccess(t *testing.T) {
	s := NewSpeaker(nil, nil, nil)
	require.True(t, s.Speak(context.Background(), "hello"))
	require.Equal(t, "tts-none", s.Name())
	require.NoError(t, s.Close())
}

func TestSpeakerFailures(t *testing.T) {
	boom := errors.New("boom")
	ctx := context.Background()

	require.False(t, NewSpeaker(&stubSynth{err: boom}, &stubPlayer{}, nil).Speak(ctx, "x"))
	require.False(t, NewSpeaker(&stubSynth{}, &stubPlayer{}, nil).Speak(ctx, "x"))
	require.False(t, NewSpeaker(&stubSynth{pcm: []byte{1}}, &stubPlayer{err: boom}, nil).Speak(ctx, "x"))
	require.False(t, NewSpeaker(&stubSynth{pcm: []byte{1}}, nil, nil).Speak(ctx, "x"))
}

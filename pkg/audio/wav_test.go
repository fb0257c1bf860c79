package audio

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWavBuffer(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav := NewWavBuffer(pcm, 44100)

	require.True(t, bytes.HasPrefix(wav, []byte("RIFF")))
	require.Equal(t, "WAVE", string(wav[8:12]))
	require.Len(t, wav, 44+len(pcm))
	require.Equal(t, uint32(44100), binary.LittleEndian.Uint32(wav[24:28]))
	require.Equal(t, uint32(88200), binary.LittleEndian.Uint32(wav[28:32]))
	require.Equal(t, pcm, wav[44:])
}

func TestDecodeWavRoundTrip(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	got, format, err := DecodeWav(NewWavBuffer(pcm, SampleRate))
	require.NoError(t, err)
	require.Equal(t, pcm, got)
	require.Equal(t, Format{SampleRate: SampleRate, Channels: 1}, format)
}

func TestDecodeWavStreamingSize(t *testing.T) {
	wav := NewWavBuffer([]byte{1, 2, 3, 4}, 22050)
	// Streaming encoders write 0xFFFFFFFF when the length is unknown.
	binary.LittleEndian.PutUint32(wav[40:44], 0xFFFFFFFF)

	got, format, err := DecodeWav(wav)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, got)
	require.Equal(t, 22050, format.SampleRate)
}

func TestDecodeWavSkipsUnknownChunks(t *testing.T) {
	wav := NewWavBuffer([]byte{9, 9}, SampleRate)
	extra := append([]byte("LIST"), 3, 0, 0, 0, 'a', 'b', 'c', 0)

	var spliced []byte
	spliced = append(spliced, wav[:36]...)
	spliced = append(spliced, extra...)
	spliced = append(spliced, wav[36:]...)

	got, _, err := DecodeWav(spliced)
	require.NoError(t, err)
	require.Equal(t, []byte{9, 9}, got)
}

func TestDecodeWavRejectsGarbage(t *testing.T) {
	_, _, err := DecodeWav([]byte("ID3 not a wave file"))
	require.ErrorIs(t, err, ErrNotWav)

	float := NewWavBuffer([]byte{0, 0}, SampleRate)
	binary.LittleEndian.PutUint16(float[20:22], 3)
	_, _, err = DecodeWav(float)
	require.ErrorIs(t, err, ErrNotWav)
}

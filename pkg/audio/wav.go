package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// SampleRate is the capture rate used for speech.
	SampleRate = 16000
	// Channels is always mono for speech capture and playback.
	Channels = 1

	bytesPerSample = 2
	wavHeaderSize  = 44
)

var ErrNotWav = errors.New("not a 16-bit PCM WAV stream")

// NewWavBuffer frames mono 16-bit little-endian PCM as a WAV file.
func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))

	header := struct {
		Riff          [4]byte
		ChunkSize     uint32
		Wave          [4]byte
		Fmt           [4]byte
		FmtSize       uint32
		AudioFormat   uint16
		NumChannels   uint16
		SampleRate    uint32
		ByteRate      uint32
		BlockAlign    uint16
		BitsPerSample uint16
		Data          [4]byte
		DataSize      uint32
	}{
		Riff:          [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		Wave:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1,
		NumChannels:   Channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * Channels * bytesPerSample),
		BlockAlign:    Channels * bytesPerSample,
		BitsPerSample: 16,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      uint32(len(pcm)),
	}
	// Writes to a bytes.Buffer cannot fail.
	_ = binary.Write(buf, binary.LittleEndian, header)
	buf.Write(pcm)

	return buf.Bytes()
}

// Format describes a decoded PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// DecodeWav extracts the PCM payload from a 16-bit WAV stream. Chunks other
// than "fmt " and "data" are skipped. A data chunk whose declared size runs
// past the end of the input is truncated, which is what streaming encoders
// such as espeak-ng --stdout produce.
func DecodeWav(data []byte) ([]byte, Format, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, Format{}, ErrNotWav
	}

	var format Format
	haveFormat := false
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, Format{}, fmt.Errorf("%w: short fmt chunk", ErrNotWav)
			}
			audioFormat := binary.LittleEndian.Uint16(data[body:])
			bits := binary.LittleEndian.Uint16(data[body+14:])
			if audioFormat != 1 || bits != 16 {
				return nil, Format{}, fmt.Errorf("%w: format %d with %d bits", ErrNotWav, audioFormat, bits)
			}
			format.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			format.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			haveFormat = true
		case "data":
			if !haveFormat {
				return nil, Format{}, fmt.Errorf("%w: data before fmt", ErrNotWav)
			}
			end := body + size
			if size == 0 || end > len(data) || end < body {
				end = len(data)
			}
			return data[body:end], format, nil
		}

		pos = body + size + size%2
	}
	return nil, Format{}, fmt.Errorf("%w: no data chunk", ErrNotWav)
}

package tts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/lokutor-ai/companion/pkg/audio"
)

// runFunc executes an external program and returns its stdout.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// LocalTTS uses the speech engine installed on the machine: espeak-ng (or
// espeak) where available, and say on macOS.
type LocalTTS struct {
	voice    string
	goos     string
	lookPath func(string) (string, error)
	run      runFunc
}

func NewLocalTTS(voice string) *LocalTTS {
	return &LocalTTS{
		voice:    voice,
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		run:      runCommand,
	}
}

func (l *LocalTTS) Name() string {
	return "local-tts"
}

func (l *LocalTTS) Synthesize(ctx context.Context, text string) ([]byte, audio.Format, error) {
	wav, err := l.render(ctx, text)
	if err != nil {
		return nil, audio.Format{}, err
	}
	pcm, format, err := audio.DecodeWav(wav)
	if err != nil {
		return nil, audio.Format{}, err
	}
	if len(pcm) == 0 {
		return nil, audio.Format{}, ErrNoAudio
	}
	return pcm, format, nil
}

func (l *LocalTTS) render(ctx context.Context, text string) ([]byte, error) {
	for _, engine := range []string{"espeak-ng", "espeak"} {
		if _, err := l.lookPath(engine); err != nil {
			continue
		}
		args := []string{"--stdout"}
		if l.voice != "" {
			args = append(args, "-v", l.voice)
		}
		args = append(args, "--", text)
		return l.run(ctx, engine, args...)
	}

	if l.goos == "darwin" {
		if _, err := l.lookPath("say"); err == nil {
			return l.say(ctx, text)
		}
	}
	return nil, ErrNoEngine
}

// say cannot write WAV to stdout, so it renders into a temporary file.
func (l *LocalTTS) say(ctx context.Context, text string) ([]byte, error) {
	dir, err := os.MkdirTemp("", "companion-say-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	out := filepath.Join(dir, "speech.wav")
	args := []string{"-o", out, "--file-format=WAVE", "--data-format=LEI16@22050"}
	if l.voice != "" {
		args = append(args, "-v", l.voice)
	}
	args = append(args, text)
	if _, err := l.run(ctx, "say", args...); err != nil {
		return nil, err
	}
	return os.ReadFile(out)
}

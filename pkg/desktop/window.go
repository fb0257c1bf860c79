// Package desktop reads what the user is looking at.
package desktop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

var ErrUnsupported = errors.New("active window lookup not supported on this platform")

const appleScript = `tell application "System Events" to get name of first application process whose frontmost is true`

// ActiveWindow reports the title of the foreground window by asking a
// platform helper: xdotool on X11, osascript on macOS.
type ActiveWindow struct {
	goos string
	run  func(ctx context.Context, name string, args ...string) (string, error)
}

func NewActiveWindow() *ActiveWindow {
	return &ActiveWindow{goos: runtime.GOOS, run: output}
}

func output(ctx context.Context, name string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (w *ActiveWindow) ActiveWindowTitle(ctx context.Context) (string, error) {
	var (
		title string
		err   error
	)
	switch w.goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		title, err = w.run(ctx, "xdotool", "getactivewindow", "getwindowname")
	case "darwin":
		title, err = w.run(ctx, "osascript", "-e", appleScript)
	default:
		return "", ErrUnsupported
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(title), nil
}

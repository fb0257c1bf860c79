package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lokutor-ai/companion/pkg/orchestrator"
)

var errQuit = errors.New("quit requested")

const helpText = `Type a message and press Enter to chat.
  /on      turn the companion on
  /off     turn the companion off
  /talk    push-to-talk: listen for one utterance
  /tick    trigger a proactive tip now
  /reload  re-read the settings file
  /help    show this help
  /quit    exit`

// Controller is the part of the orchestrator the console drives.
type Controller interface {
	SetEnabled(on bool)
	SubmitText(text string)
	SubmitVoice()
	TriggerProactiveTick()
}

// Console is the line-based front end: it turns input lines into commands
// and prints orchestrator events.
type Console struct {
	in     io.Reader
	out    io.Writer
	ctl    Controller
	reload func() error

	mu sync.Mutex
}

func NewConsole(in io.Reader, out io.Writer, ctl Controller, reload func() error) *Console {
	return &Console{in: in, out: out, ctl: ctl, reload: reload}
}

func (c *Console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// ReadLoop dispatches input lines until ctx is done, input ends, or /quit
// is entered, in which case it returns errQuit.
func (c *Console) ReadLoop(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	// The scanner cannot be interrupted; it is abandoned when ctx ends.
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	c.printf("%s\n", helpText)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if err := c.dispatch(line); err != nil {
				return err
			}
		}
	}
}

func (c *Console) dispatch(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		c.ctl.SubmitText(line)
		return nil
	}

	switch strings.ToLower(strings.Fields(line)[0]) {
	case "/on":
		c.ctl.SetEnabled(true)
		c.printf("Companion is on.\n")
	case "/off":
		c.ctl.SetEnabled(false)
		c.printf("Companion is off.\n")
	case "/talk":
		c.ctl.SubmitVoice()
	case "/tick":
		c.ctl.TriggerProactiveTick()
	case "/reload":
		if c.reload == nil {
			break
		}
		if err := c.reload(); err != nil {
			c.printf("Could not reload settings: %v\n", err)
		} else {
			c.printf("Settings reloaded.\n")
		}
	case "/help":
		c.printf("%s\n", helpText)
	case "/quit", "/exit":
		return errQuit
	default:
		c.printf("Unknown command %q. Type /help for a list.\n", line)
	}
	return nil
}

// Render prints events until the channel is closed.
func (c *Console) Render(events <-chan orchestrator.OrchestratorEvent) {
	for ev := range events {
		switch ev.Type {
		case orchestrator.MessageReady:
			if msg, ok := ev.Data.(orchestrator.Message); ok {
				c.printf("Companion: %s\n", msg.Content)
			}
		case orchestrator.NewSessionStarted:
			c.printf("--- new conversation ---\n")
		case orchestrator.ListeningStatus:
			if on, _ := ev.Data.(bool); on {
				c.printf("[listening]\n")
			} else {
				c.printf("[not listening]\n")
			}
		case orchestrator.TTSHealthChanged:
			if ok, _ := ev.Data.(bool); !ok {
				c.printf("[voice output failed and is disabled until settings change]\n")
			}
		}
	}
}

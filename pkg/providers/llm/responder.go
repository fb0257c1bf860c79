package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/lokutor-ai/companion/pkg/orchestrator"
)

const NotConfiguredReply = "AI provider not configured. Please check your settings."

// Completer is a chat backend that can fail.
type Completer interface {
	Complete(ctx context.Context, messages []orchestrator.Message) (string, error)
	Name() string
}

// Responder adapts a Completer to the orchestrator's AIProvider contract:
// every failure is turned into a sentence the user can read.
type Responder struct {
	backend Completer
	logger  orchestrator.Logger
}

func NewResponder(backend Completer, logger orchestrator.Logger) *Responder {
	if logger == nil {
		logger = &orchestrator.NoOpLogger{}
	}
	return &Responder{backend: backend, logger: logger}
}

func (r *Responder) Name() string {
	if r.backend == nil {
		return "ai-none"
	}
	return r.backend.Name()
}

func (r *Responder) GetResponse(ctx context.Context, messages []orchestrator.Message) string {
	if r.backend == nil {
		return NotConfiguredReply
	}
	reply, err := r.backend.Complete(ctx, messages)
	if err != nil {
		r.logger.Error("AI request failed", "provider", r.backend.Name(), "error", err)
		return r.describe(err)
	}
	return reply
}

func (r *Responder) describe(err error) string {
	if errors.Is(err, ErrNotConfigured) {
		return NotConfiguredReply
	}
	if o, ok := r.backend.(*OllamaLLM); ok {
		if isConnectionError(err) {
			return fmt.Sprintf("Ollama connection failed. Is Ollama running at %s?", o.Host())
		}
		return "I encountered an error with the Ollama API."
	}
	return "I encountered an error with the OpenAI API."
}

// isConnectionError reports whether the server could not be reached at all,
// as opposed to answering with an error.
func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return !urlErr.Timeout() && !errors.Is(err, context.Canceled)
	}
	return false
}

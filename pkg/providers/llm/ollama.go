package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lokutor-ai/companion/pkg/orchestrator"
	"github.com/lokutor-ai/companion/pkg/settings"
)

// OllamaLLM talks to a local Ollama server's chat endpoint without
// streaming.
type OllamaLLM struct {
	host   string
	model  string
	client *http.Client
}

func NewOllamaLLM(host string, model string) *OllamaLLM {
	if host == "" {
		host = settings.DefaultOllamaHost
	}
	if model == "" {
		model = settings.DefaultOllamaModel
	}
	return &OllamaLLM{
		host:   strings.TrimRight(host, "/"),
		model:  model,
		client: http.DefaultClient,
	}
}

func (l *OllamaLLM) Host() string {
	return l.host
}

func (l *OllamaLLM) Complete(ctx context.Context, messages []orchestrator.Message) (string, error) {
	payload := map[string]interface{}{
		"model":    l.model,
		"messages": toChatMessages(messages),
		"stream":   false,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Provider: "ollama", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode ollama response: %w", err)
	}

	content := strings.TrimSpace(result.Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

func (l *OllamaLLM) Name() string {
	return "ollama-llm"
}

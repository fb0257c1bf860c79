package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lokutor-ai/companion/pkg/orchestrator"
	"github.com/stretchr/testify/require"
)

func TestOpenAILLM(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Model != "gpt-3.5-turbo" || len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		w.Write([]byte(`{"choices":[{"message":{"content":"  hello from openai\n"}}]}`))
	}))
	defer server.Close()

	l := NewOpenAILLM("test-key", "")
	l.url = server.URL

	messages := []orchestrator.Message{
		{Role: orchestrator.RoleSystem, Content: "be nice"},
		{Role: orchestrator.RoleUser, Content: "hi"},
	}

	resp, err := l.Complete(context.Background(), messages)
	require.NoError(t, err)
	require.Equal(t, "hello from openai", resp)
	require.Equal(t, "openai-llm", l.Name())
}

func TestOpenAILLMErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer empty" {
			w.Write([]byte(`{"choices":[]}`))
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer server.Close()

	l := NewOpenAILLM("limited", "")
	l.url = server.URL
	_, err := l.Complete(context.Background(), nil)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	require.Contains(t, statusErr.Error(), "slow down")

	l = NewOpenAILLM("empty", "")
	l.url = server.URL
	_, err = l.Complete(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyResponse)

	l = NewOpenAILLM("YOUR_OPENAI_API_KEY_HERE", "")
	l.url = server.URL
	_, err = l.Complete(context.Background(), nil)
	require.ErrorIs(t, err, ErrNotConfigured)
}

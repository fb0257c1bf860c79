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

func TestOllamaLLM(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		var req struct {
			Model    string          `json:"model"`
			Stream   *bool           `json:"stream"`
			Messages json.RawMessage `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Stream == nil || *req.Stream {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Model != "llama3" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"model not found"}`))
			return
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":"local answer "}}`))
	}))
	defer server.Close()

	l := NewOllamaLLM(server.URL+"/", "")
	require.Equal(t, server.URL, l.Host())

	resp, err := l.Complete(context.Background(), []orchestrator.Message{{Role: orchestrator.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, "local answer", resp)

	_, err = NewOllamaLLM(server.URL, "mistral").Complete(context.Background(), nil)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestElevenLabsTTS(t *testing.T) {
	type call struct {
		path, format, key string
		body              map[string]string
	}
	calls := make(chan call, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		calls <- call{path: r.URL.Path, format: r.URL.Query().Get("output_format"), key: r.Header.Get("xi-api-key"), body: body}
		w.Write([]byte{1, 0, 2, 0})
	}))
	defer server.Close()

	e := NewElevenLabsTTS("el-key", "")
	e.baseURL = server.URL

	pcm, format, err := e.Synthesize(context.Background(), `She said "hi" to me.`)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0, 2, 0}, pcm)
	require.Equal(t, 16000, format.SampleRate)

	got := <-calls
	require.Equal(t, "/v1/text-to-speech/21m00Tcm4TlvDq8ikWAM/stream", got.path)
	require.Equal(t, "pcm_16000", got.format)
	require.Equal(t, "el-key", got.key)
	require.Equal(t, "She said hi to me.", got.body["text"])
	require.Equal(t, "eleven_multilingual_v2", got.body["model_id"])
}

func TestElevenLabsTTSErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") == "quiet" {
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"invalid api key"}`))
	}))
	defer server.Close()

	e := NewElevenLabsTTS("bad", "voice")
	e.baseURL = server.URL
	_, _, err := e.Synthesize(context.Background(), "hello")
	require.ErrorContains(t, err, "status=401")

	e = NewElevenLabsTTS("quiet", "voice")
	e.baseURL = server.URL
	_, _, err = e.Synthesize(context.Background(), "hello")
	require.ErrorIs(t, err, ErrNoAudio)
}

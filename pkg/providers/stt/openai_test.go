package stt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAISTT(t *testing.T) {
	type upload struct {
		model, language string
		file            []byte
	}
	uploads := make(chan upload, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		uploads <- upload{model: r.FormValue("model"), language: r.FormValue("language"), file: data}

		w.Write([]byte(`{"text":" transcribed text "}`))
	}))
	defer server.Close()

	s := NewOpenAISTT("test-key", "", "en")
	s.url = server.URL

	result, err := s.Transcribe(context.Background(), []byte{0, 0, 0, 0}, 16000)
	require.NoError(t, err)
	require.Equal(t, "transcribed text", result)
	require.Equal(t, "openai_stt", s.Name())

	got := <-uploads
	require.Equal(t, "whisper-1", got.model)
	require.Equal(t, "en", got.language)
	require.Equal(t, "RIFF", string(got.file[:4]))
	require.Len(t, got.file, 44+4)
}

func TestOpenAISTTErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad key"))
	}))
	defer server.Close()

	s := NewOpenAISTT("wrong", "", "")
	s.url = server.URL
	_, err := s.Transcribe(context.Background(), []byte{0, 0}, 16000)
	require.ErrorContains(t, err, "status 401")

	_, err = NewOpenAISTT("", "", "").Transcribe(context.Background(), nil, 16000)
	require.ErrorIs(t, err, ErrNotConfigured)
}

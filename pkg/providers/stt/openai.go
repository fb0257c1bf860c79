package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/lokutor-ai/companion/pkg/audio"
	"github.com/lokutor-ai/companion/pkg/settings"
)

var ErrNotConfigured = errors.New("openai stt not configured")

// OpenAISTT uploads an utterance to the Whisper transcription endpoint.
type OpenAISTT struct {
	apiKey   string
	url      string
	model    string
	language string
	client   *http.Client
}

func NewOpenAISTT(apiKey string, model string, language string) *OpenAISTT {
	if model == "" {
		model = "whisper-1"
	}
	return &OpenAISTT{
		apiKey:   apiKey,
		url:      "https://api.openai.com/v1/audio/transcriptions",
		model:    model,
		language: language,
		client:   http.DefaultClient,
	}
}

func (s *OpenAISTT) Name() string {
	return "openai_stt"
}

func (s *OpenAISTT) Transcribe(ctx context.Context, pcm []byte, sampleRate int) (string, error) {
	if settings.IsPlaceholder(s.apiKey) {
		return "", ErrNotConfigured
	}
	wavData := audio.NewWavBuffer(pcm, sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if err := writer.WriteField("model", s.model); err != nil {
		return "", err
	}

	if s.language != "" {
		if err := writer.WriteField("language", s.language); err != nil {
			return "", err
		}
	}

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(wavData); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, body)
	if err != nil {
		return "", err
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("openai stt error: %s (status %d)", strings.TrimSpace(string(respBody)), resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode openai stt response: %w", err)
	}

	return strings.TrimSpace(result.Text), nil
}

package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/lokutor-ai/companion/pkg/audio"
	"github.com/lokutor-ai/companion/pkg/settings"
)

const (
	elevenLabsModel      = "eleven_multilingual_v2"
	elevenLabsSampleRate = 16000
)

type ElevenLabsTTS struct {
	apiKey  string
	voiceID string
	baseURL string
	client  *http.Client
}

func NewElevenLabsTTS(apiKey, voiceID string) *ElevenLabsTTS {
	if voiceID == "" {
		voiceID = settings.DefaultElevenLabsVoice
	}
	return &ElevenLabsTTS{
		apiKey:  apiKey,
		voiceID: voiceID,
		baseURL: "https://api.elevenlabs.io",
		client:  http.DefaultClient,
	}
}

func (e *ElevenLabsTTS) Name() string {
	return "elevenlabs"
}

// Synthesize streams raw PCM from the text-to-speech endpoint. Double quotes
// are stripped from the text first.
func (e *ElevenLabsTTS) Synthesize(ctx context.Context, text string) ([]byte, audio.Format, error) {
	u, err := url.Parse(e.baseURL + "/v1/text-to-speech/" + url.PathEscape(e.voiceID) + "/stream")
	if err != nil {
		return nil, audio.Format{}, err
	}
	q := u.Query()
	q.Set("output_format", fmt.Sprintf("pcm_%d", elevenLabsSampleRate))
	u.RawQuery = q.Encode()

	body, err := json.Marshal(map[string]interface{}{
		"text":     strings.ReplaceAll(text, `"`, ""),
		"model_id": elevenLabsModel,
	})
	if err != nil {
		return nil, audio.Format{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, audio.Format{}, err
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("elevenlabs request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, audio.Format{}, fmt.Errorf("elevenlabs http status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("elevenlabs read error: %w", err)
	}
	if len(pcm) == 0 {
		return nil, audio.Format{}, ErrNoAudio
	}
	return pcm, audio.Format{SampleRate: elevenLabsSampleRate, Channels: 1}, nil
}

package tts

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/lokutor-ai/companion/pkg/audio"
)

const (
	lokutorSampleRate      = 44100
	DefaultLokutorVoice    = "F1"
	DefaultLokutorLanguage = "en"
)

// LokutorTTS streams synthesis over a persistent websocket. The connection
// is dialed lazily and dropped after any transport error.
type LokutorTTS struct {
	apiKey string
	voice  string
	lang   string
	host   string
	scheme string
	mu     sync.Mutex
	conn   *websocket.Conn
}

func NewLokutorTTS(apiKey, voice, lang string) *LokutorTTS {
	if voice == "" {
		voice = DefaultLokutorVoice
	}
	if lang == "" {
		lang = DefaultLokutorLanguage
	}
	return &LokutorTTS{
		apiKey: apiKey,
		voice:  voice,
		lang:   lang,
		host:   "api.lokutor.com",
		scheme: "wss",
	}
}

// getConn must be called with t.mu held.
func (t *LokutorTTS) getConn(ctx context.Context) (*websocket.Conn, error) {
	if t.conn != nil {
		return t.conn, nil
	}

	u := url.URL{Scheme: t.scheme, Host: t.host, Path: "/ws", RawQuery: url.Values{"api_key": {t.apiKey}}.Encode()}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to lokutor: %w", err)
	}

	conn.SetReadLimit(10 * 1024 * 1024)

	t.conn = conn
	return conn, nil
}

func (t *LokutorTTS) Synthesize(ctx context.Context, text string) ([]byte, audio.Format, error) {
	var pcm []byte
	err := t.StreamSynthesize(ctx, text, func(chunk []byte) error {
		pcm = append(pcm, chunk...)
		return nil
	})
	if err != nil {
		return nil, audio.Format{}, err
	}
	if len(pcm) == 0 {
		return nil, audio.Format{}, ErrNoAudio
	}
	return pcm, audio.Format{SampleRate: lokutorSampleRate, Channels: 1}, nil
}

func (t *LokutorTTS) StreamSynthesize(ctx context.Context, text string, onChunk func([]byte) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, err := t.getConn(ctx)
	if err != nil {
		return err
	}

	req := map[string]interface{}{
		"text":    text,
		"voice":   t.voice,
		"lang":    t.lang,
		"speed":   1.0,
		"steps":   6,
		"visemes": false,
	}

	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.drop(conn, "failed to write json")
		return fmt.Errorf("failed to send synthesis request: %w", err)
	}

	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			t.drop(conn, "failed to read")
			return fmt.Errorf("failed to read from lokutor: %w", err)
		}

		switch messageType {
		case websocket.MessageBinary:
			if err := onChunk(payload); err != nil {
				t.drop(conn, "consumer aborted")
				return err
			}
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return nil
			}
			if strings.HasPrefix(msg, "ERR:") {
				return fmt.Errorf("lokutor error: %s", strings.TrimSpace(strings.TrimPrefix(msg, "ERR:")))
			}
		}
	}
}

// drop discards a connection whose stream position is unknown.
func (t *LokutorTTS) drop(conn *websocket.Conn, reason string) {
	t.conn = nil
	conn.Close(websocket.StatusAbnormalClosure, reason)
}

func (t *LokutorTTS) Name() string {
	return "lokutor"
}

func (t *LokutorTTS) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "")
		t.conn = nil
		return err
	}
	return nil
}

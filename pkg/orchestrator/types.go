package orchestrator

import (
	"context"
	"time"

	"github.com/lokutor-ai/companion/pkg/settings"
)

type Logger interface {
	Debug(msg string, args ...interface{})

	Info(msg string, args ...interface{})

	Warn(msg string, args ...interface{})

	Error(msg string, args ...interface{})
}

type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, args ...interface{}) {}
func (n *NoOpLogger) Info(msg string, args ...interface{})  {}
func (n *NoOpLogger) Warn(msg string, args ...interface{})  {}
func (n *NoOpLogger) Error(msg string, args ...interface{}) {}

// AIProvider completes a conversation. It never fails: any internal error
// comes back as a human-readable fallback sentence.
type AIProvider interface {
	GetResponse(ctx context.Context, messages []Message) string
	Name() string
}

// TTSProvider speaks text aloud and reports whether it succeeded. A provider
// that is intentionally disabled reports success.
type TTSProvider interface {
	Speak(ctx context.Context, text string) bool
	Name() string
}

// STTProvider owns the microphone. Background and on-demand listening are
// mutually exclusive. Transcription failures of any kind surface as an
// error or an empty string from ListenOnDemand, or as a missing callback.
type STTProvider interface {
	ListenOnDemand(ctx context.Context) (string, error)
	// StartBackgroundListening invokes onText from its own goroutine for every
	// non-empty transcription until ctx is cancelled or
	// StopBackgroundListening is called. If listening ends by itself, such as
	// when the microphone becomes unavailable, onStopped is called once with
	// the cause and the provider is idle again.
	StartBackgroundListening(ctx context.Context, onText func(text string), onStopped func(err error)) error
	// StopBackgroundListening returns only once no further onText call can
	// happen.
	StopBackgroundListening()
	IsListening() bool
	Name() string
}

// ContextProvider describes what the user is doing right now, typically the
// title of the foreground window.
type ContextProvider interface {
	ActiveWindowTitle(ctx context.Context) (string, error)
}

// Providers is one generation of provider handles built from a single
// settings snapshot.
type Providers struct {
	AI  AIProvider
	TTS TTSProvider
	STT STTProvider
}

// ProviderFactory builds handles from a snapshot. Misconfiguration is not an
// error: the factory returns providers that report themselves unconfigured.
type ProviderFactory func(s settings.Settings) Providers

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"-"`
}

type EventType string

const (
	// MessageReady carries a Message for the UI to display
	MessageReady      EventType = "MESSAGE_READY"
	NewSessionStarted EventType = "NEW_SESSION_STARTED"
	// ListeningStatus carries a bool: true while the microphone is open
	ListeningStatus EventType = "LISTENING_STATUS"
	// TTSHealthChanged carries a bool: false once speech output has failed
	TTSHealthChanged EventType = "TTS_HEALTH"
)

type OrchestratorEvent struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data,omitempty"`
}

// ListeningState is a single enum so background and on-demand listening can
// never both be recorded as active.
type ListeningState int

const (
	Idle ListeningState = iota
	BackgroundActive
	OnDemandActive
)

func (l ListeningState) String() string {
	switch l {
	case BackgroundActive:
		return "background"
	case OnDemandActive:
		return "on-demand"
	default:
		return "idle"
	}
}

type TTSHealth int

const (
	Healthy TTSHealth = iota
	Degraded
)

func (h TTSHealth) String() string {
	if h == Degraded {
		return "degraded"
	}
	return "healthy"
}

// State is a point-in-time copy of the orchestrator's state.
type State struct {
	SessionID  string
	Session    []Message
	Enabled    bool
	HasGreeted bool
	Listening  ListeningState
	TTSHealth  TTSHealth
	Generation uint64
	Busy       bool
	Pending    int
	Settings   settings.Settings
}

type Config struct {
	MaxContextMessages int
	AITimeout          time.Duration
	TTSTimeout         time.Duration
	STTTimeout         time.Duration
	// EventBuffer is the capacity of the outbound event channel.
	EventBuffer int
	// IntervalUnit scales proactivity.frequency_seconds; tests shrink it.
	IntervalUnit time.Duration
	// ContextTimeout bounds the foreground window lookup.
	ContextTimeout time.Duration
	// Now is the clock used for message timestamps and the system prompt.
	Now func() time.Time
}

func DefaultConfig() Config {
	return Config{
		MaxContextMessages: 40,
		AITimeout:          60 * time.Second,
		TTSTimeout:         120 * time.Second,
		STTTimeout:         30 * time.Second,
		EventBuffer:        256,
		IntervalUnit:       time.Second,
		ContextTimeout:     2 * time.Second,
		Now:                time.Now,
	}
}

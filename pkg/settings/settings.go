package settings

import "strings"

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	TTSElevenLabs = "elevenlabs"
	TTSLokutor    = "lokutor"
	TTSLocal      = "local"
	TTSNone       = "none"

	STTOpenAI = "openai"
	STTNone   = "none"

	DefaultSystemPrompt     = "You are a helpful assistant."
	DefaultFrequencySeconds = 60
	DefaultOllamaHost       = "http://localhost:11434"
	DefaultOllamaModel      = "llama3"
	DefaultOpenAIModel      = "gpt-3.5-turbo"
	DefaultElevenLabsVoice  = "21m00Tcm4TlvDq8ikWAM"
)

// Settings is a complete configuration snapshot. It is replaced whole,
// never patched field by field. Use Clone before handing a snapshot to
// another owner.
type Settings struct {
	AI               AI               `json:"ai" yaml:"ai"`
	Voice            Voice            `json:"voice" yaml:"voice"`
	Proactivity      Proactivity      `json:"proactivity" yaml:"proactivity"`
	ContextAwareness ContextAwareness `json:"context_awareness" yaml:"context_awareness"`
	AudioInput       AudioInput       `json:"audio_input" yaml:"audio_input"`
	Personality      Personality      `json:"ai_personality" yaml:"ai_personality"`
	UI               UI               `json:"ui" yaml:"ui"`
}

type AI struct {
	Provider         string         `json:"provider" yaml:"provider"`
	OpenAI           OpenAISettings `json:"openai_settings" yaml:"openai_settings"`
	Ollama           OllamaSettings `json:"ollama_settings" yaml:"ollama_settings"`
	ElevenLabsAPIKey string         `json:"elevenlabs_api_key" yaml:"elevenlabs_api_key"`
	LokutorAPIKey    string         `json:"lokutor_api_key,omitempty" yaml:"lokutor_api_key,omitempty"`
}

type OpenAISettings struct {
	APIKey string `json:"api_key" yaml:"api_key"`
	Model  string `json:"model,omitempty" yaml:"model,omitempty"`
}

type OllamaSettings struct {
	Host  string `json:"host" yaml:"host"`
	Model string `json:"model" yaml:"model"`
}

type Voice struct {
	Enabled     bool         `json:"enabled" yaml:"enabled"`
	TTSProvider string       `json:"tts_provider" yaml:"tts_provider"`
	ElevenLabs  VoiceID      `json:"elevenlabs_settings" yaml:"elevenlabs_settings"`
	LocalTTS    VoiceID      `json:"local_tts_settings" yaml:"local_tts_settings"`
	Lokutor     LokutorVoice `json:"lokutor_settings,omitempty" yaml:"lokutor_settings,omitempty"`
}

type VoiceID struct {
	VoiceID string `json:"voice_id" yaml:"voice_id"`
}

type LokutorVoice struct {
	Voice    string `json:"voice,omitempty" yaml:"voice,omitempty"`
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
}

type Proactivity struct {
	Enabled                  bool `json:"enabled" yaml:"enabled"`
	FrequencySeconds         int  `json:"frequency_seconds" yaml:"frequency_seconds"`
	// InactivityTimeoutSeconds is kept for front ends that hide idle
	// messages. The orchestrator does not read it.
	InactivityTimeoutSeconds int  `json:"inactivity_timeout_seconds,omitempty" yaml:"inactivity_timeout_seconds,omitempty"`
}

type ContextAwareness struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

type AudioInput struct {
	// MicDeviceIndex selects a capture device; nil means the system default.
	MicDeviceIndex    *int   `json:"mic_device_index" yaml:"mic_device_index"`
	AlwaysOnListening bool   `json:"always_on_listening" yaml:"always_on_listening"`
	STTProvider       string `json:"stt_provider,omitempty" yaml:"stt_provider,omitempty"`
	Language          string `json:"language,omitempty" yaml:"language,omitempty"`
}

type Personality struct {
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`
}

type UI struct {
	Theme       string `json:"theme,omitempty" yaml:"theme,omitempty"`
	AlwaysOnTop bool   `json:"always_on_top" yaml:"always_on_top"`
}

// Defaults returns the settings written on first launch.
func Defaults() Settings {
	return Settings{
		AI: AI{
			Provider:         ProviderOpenAI,
			OpenAI:           OpenAISettings{APIKey: "YOUR_OPENAI_API_KEY_HERE"},
			Ollama:           OllamaSettings{Host: DefaultOllamaHost, Model: DefaultOllamaModel},
			ElevenLabsAPIKey: "YOUR_ELEVENLABS_API_KEY_HERE",
		},
		Voice: Voice{
			Enabled:     true,
			TTSProvider: TTSElevenLabs,
			ElevenLabs:  VoiceID{VoiceID: DefaultElevenLabsVoice},
		},
		Proactivity: Proactivity{
			Enabled:                  true,
			FrequencySeconds:         DefaultFrequencySeconds,
			InactivityTimeoutSeconds: 180,
		},
		ContextAwareness: ContextAwareness{Enabled: true},
		AudioInput:       AudioInput{STTProvider: STTOpenAI},
		Personality: Personality{
			SystemPrompt: "You are a helpful and concise desktop assistant named Companion.",
		},
		UI: UI{Theme: "dark", AlwaysOnTop: true},
	}
}

// Clone returns a deep copy. MicDeviceIndex is the only pointer field.
func (s Settings) Clone() Settings {
	if s.AudioInput.MicDeviceIndex != nil {
		idx := *s.AudioInput.MicDeviceIndex
		s.AudioInput.MicDeviceIndex = &idx
	}
	return s
}

// SystemPrompt returns the personality prompt, falling back to a neutral
// assistant persona when none is configured.
func (s Settings) SystemPrompt() string {
	if p := strings.TrimSpace(s.Personality.SystemPrompt); p != "" {
		return p
	}
	return DefaultSystemPrompt
}

// ProactiveInterval returns the tick period in seconds, defaulting
// non-positive values.
func (s Settings) ProactiveInterval() int {
	if s.Proactivity.FrequencySeconds <= 0 {
		return DefaultFrequencySeconds
	}
	return s.Proactivity.FrequencySeconds
}

// IsPlaceholder reports whether a credential is missing or still holds the
// template value shipped in the defaults.
func IsPlaceholder(key string) bool {
	k := strings.TrimSpace(key)
	if k == "" {
		return true
	}
	return strings.HasPrefix(strings.ToUpper(k), "YOUR_")
}

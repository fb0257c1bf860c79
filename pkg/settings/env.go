package settings

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file into the process environment if one exists.
// Variables already set in the environment win.
func LoadDotEnv(files ...string) error {
	return godotenv.Load(files...)
}

// WithEnvCredentials fills credentials that are empty or still placeholders
// from OPENAI_API_KEY, ELEVENLABS_API_KEY and LOKUTOR_API_KEY. Keys present
// in the file are never overridden.
func WithEnvCredentials(s Settings) Settings {
	s = s.Clone()
	if IsPlaceholder(s.AI.OpenAI.APIKey) {
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			s.AI.OpenAI.APIKey = v
		}
	}
	if IsPlaceholder(s.AI.ElevenLabsAPIKey) {
		if v := os.Getenv("ELEVENLABS_API_KEY"); v != "" {
			s.AI.ElevenLabsAPIKey = v
		}
	}
	if IsPlaceholder(s.AI.LokutorAPIKey) {
		if v := os.Getenv("LOKUTOR_API_KEY"); v != "" {
			s.AI.LokutorAPIKey = v
		}
	}
	return s
}

package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Logger is the subset of the orchestrator logger the store needs.
type Logger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(msg string, args ...interface{}) {}
func (nopLogger) Warn(msg string, args ...interface{}) {}

// Store reads and writes the settings file. JSON is the default format;
// a .yaml or .yml extension switches to YAML.
type Store struct {
	path   string
	logger Logger
}

func NewStore(path string, logger Logger) *Store {
	if logger == nil {
		logger = nopLogger{}
	}
	return &Store{path: path, logger: logger}
}

func (st *Store) Path() string {
	return st.path
}

func (st *Store) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(st.path))
	return ext == ".yaml" || ext == ".yml"
}

// Load returns the stored settings. A missing file is created with
// Defaults. An unreadable file is moved aside to <path>.corrupted.bak and
// replaced with Defaults. Sections absent from the file decode to their
// zero value, which every consumer treats as "feature disabled".
func (st *Store) Load() (Settings, error) {
	data, err := os.ReadFile(st.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		st.logger.Info("settings file not found, writing defaults", "path", st.path)
		return st.writeDefaults()
	case err != nil:
		return Settings{}, fmt.Errorf("%w: %v", ErrRead, err)
	}

	s, err := st.decode(data)
	if err != nil {
		backup := st.path + ".corrupted.bak"
		st.logger.Warn("settings file is corrupted, backing up and writing defaults", "path", st.path, "backup", backup, "error", err)
		if rerr := os.Rename(st.path, backup); rerr != nil {
			return Settings{}, fmt.Errorf("backup corrupted settings: %w", rerr)
		}
		return st.writeDefaults()
	}
	return s, nil
}

// Read decodes the current file without the repair behaviour of Load. It
// is used for reloads, where a half-saved file must not be moved aside.
func (st *Store) Read() (Settings, error) {
	data, err := os.ReadFile(st.path)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return st.decode(data)
}

// Save writes s atomically (temp file + rename) so a watcher never observes
// a half-written file.
func (st *Store) Save(s Settings) error {
	data, err := st.encode(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	dir := filepath.Dir(st.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(st.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := os.Rename(tmp.Name(), st.path); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

func (st *Store) writeDefaults() (Settings, error) {
	s := Defaults()
	if err := st.Save(s); err != nil {
		return s, err
	}
	return s, nil
}

func (st *Store) decode(data []byte) (Settings, error) {
	var s Settings
	if len(bytes.TrimSpace(data)) == 0 {
		return s, ErrEmpty
	}
	if st.isYAML() {
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Settings{}, err
		}
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (st *Store) encode(s Settings) ([]byte, error) {
	if st.isYAML() {
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return json.MarshalIndent(s, "", "  ")
}

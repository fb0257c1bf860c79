package settings

import "errors"

var (
	// ErrRead is returned when the settings file exists but cannot be read
	ErrRead = errors.New("read settings")

	// ErrWrite is returned when the settings file cannot be written
	ErrWrite = errors.New("write settings")

	// ErrEmpty is reported for a zero-length settings file
	ErrEmpty = errors.New("settings file is empty")
)

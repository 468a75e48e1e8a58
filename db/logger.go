package db

import "github.com/aalhour/levelkv/internal/logging"

// newDefaultLogger returns the logger used when Options.Logger is unset.
func newDefaultLogger() Logger {
	return logging.NewDefaultLogger(logging.LevelWarn)
}

// Package logger provides a configured zerolog instance.
package logger

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/syncpulse-dev/notify-worker/internal/config"
)

// NewLogger creates a new configured instance of zerolog.Logger.
// It reads the log level from the config and adds default fields like service name and caller.
func NewLogger(cfg *config.Config) (*zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Logger.Level)
	if err != nil {
		// Default to info level if config is invalid or missing
		level = zerolog.InfoLevel
	}

	// For local development, a pretty console output is much more readable.
	// For production, you'd typically remove ConsoleWriter to get pure JSON.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr}

	// Create a logger with a predefined context.
	logger := zerolog.New(consoleWriter).With().
		Timestamp().                   // Adds "time" field
		Str("service", "notify-worker"). // Adds "service" field for context
		Caller().                      // Adds "caller":"/path/to/file.go:line"
		Logger().
		Level(level) // Set the minimum log level

	if cfg.DebugMode {
		logger.Warn().Msg("DEBUG_MODE is enabled: push tokens will appear in logs, do not run this in production")
	}

	return &logger, nil
}

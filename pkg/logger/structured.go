package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var zlog zerolog.Logger

// InitStructured initializes the structured zerolog logger
func InitStructured(env string) {
	var w io.Writer

	if env == "development" || env == "dev" || env == "local" {
		// Pretty console output for development
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	} else {
		// JSON output for production (machine-readable)
		w = os.Stdout
	}

	zlog = zerolog.New(w).With().
		Timestamp().
		Str("service", "angple-workflow").
		Logger()

	zerolog.TimeFieldFormat = time.RFC3339
}

// GetLogger returns the global zerolog logger
func GetLogger() *zerolog.Logger {
	return &zlog
}

// WithSchedule returns a logger with schedule_id field
func WithSchedule(scheduleID uint64) zerolog.Logger {
	return zlog.With().Uint64("schedule_id", scheduleID).Logger()
}

// WithVersion returns a logger with version_id field
func WithVersion(versionID uint64) zerolog.Logger {
	return zlog.With().Uint64("version_id", versionID).Logger()
}

// Info logs a formatted message at info level (wiring-code convenience)
func Info(format string, args ...any) {
	zlog.Info().Msgf(format, args...)
}

// Warn logs a formatted message at warn level
func Warn(format string, args ...any) {
	zlog.Warn().Msgf(format, args...)
}

// Error logs a formatted message at error level
func Error(format string, args ...any) {
	zlog.Error().Msgf(format, args...)
}

package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the logger type passed around the service.
type Logger = zerolog.Logger

// NewLogger returns a console logger at debug level in development and a JSON
// logger at info level elsewhere. JSON events carry the environment name.
func NewLogger(appEnv string) zerolog.Logger {
	if appEnv == "development" {
		console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(console).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	}
	return newJSONLogger(os.Stdout, appEnv)
}

func newJSONLogger(w io.Writer, appEnv string) zerolog.Logger {
	return zerolog.New(w).Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Str("service", "poster").
		Str("env", appEnv).
		Logger()
}

// DiscardLogger drops every event. Constructors fall back to it when no
// logger is injected.
func DiscardLogger() *Logger {
	l := zerolog.Nop()
	return &l
}

// Package logging provides structured logging with zerolog: the global
// logger initialized once at startup, contextual WithX helpers that attach
// participant/session fields, and the numeric level gate for the
// dispatcher's own "log" output port.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARNING, ERROR
	Format string // json, console
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(normalizeLevel(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// normalizeLevel maps the LOG_LEVEL vocabulary ("WARNING") onto
// zerolog's ("warn").
func normalizeLevel(level string) string {
	switch level {
	case "WARNING", "warning":
		return "warn"
	default:
		return level
	}
}

// WithParticipant returns a logger with participant context.
func WithParticipant(participant string) zerolog.Logger {
	return log.With().Str("participant", participant).Logger()
}

// WithSession returns a logger with participant + session context.
func WithSession(participant, sessionID string) zerolog.Logger {
	return log.With().
		Str("participant", participant).
		Str("sessionId", sessionID).
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Level maps LOG_LEVEL strings to a numeric gate (DEBUG:10, INFO:20,
// WARNING:30, ERROR:40) for the "log" output-port filter in
// internal/egress. The port's gate is independent of zerolog's own level.
func Level(name string) int {
	switch name {
	case "DEBUG":
		return 10
	case "INFO":
		return 20
	case "WARNING":
		return 30
	case "ERROR":
		return 40
	default:
		return 20
	}
}

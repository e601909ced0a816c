// Package logging provides Lantern's structured logging setup.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with the fields Lantern attaches to every line.
type Logger struct {
	zerolog.Logger
}

// Config controls logger construction.
type Config struct {
	Level   string // debug, info, warn, error
	Pretty  bool
	Output  io.Writer
	Service string
}

// New builds a Logger from Config. A zero-value Config produces an
// info-level, JSON-output logger writing to stderr.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	base := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		base = base.Str("service", cfg.Service)
	}

	return &Logger{Logger: base.Logger()}
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// Nop returns a logger that discards everything, for tests.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// With returns a child logger carrying the given component name.
func (l *Logger) With(component string) *Logger {
	child := l.Logger.With().Str("component", component).Logger()
	return &Logger{Logger: child}
}

// Package logx provides process-wide structured logging built on zerolog.
package logx

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var base zerolog.Logger

func init() {
	base = zerolog.New(os.Stderr).With().Timestamp().Logger()
	zerolog.TimeFieldFormat = time.RFC3339
}

// Init configures the global logger. level is one of the zerolog level
// names (debug, info, warn, error); format "console" renders human-readable
// lines, anything else (including empty) renders JSON.
func Init(level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var w io.Writer = os.Stderr
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	base = zerolog.New(w).With().Timestamp().Logger()
}

// Component returns a logger tagged with the given subsystem name, following
// the per-subsystem logger pattern used throughout the corpus.
func Component(name string) zerolog.Logger {
	return base.With().Str("component", name).Logger()
}

// Log returns the raw global logger.
func Log() *zerolog.Logger {
	return &base
}

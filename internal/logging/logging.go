// Package logging builds the zerolog loggers handed to the server, the
// store and the CLI. Packages below internal/rotation/pipeline never log.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options selects the output of New.
type Options struct {
	// Level is one of trace, debug, info, warn, error (any case).
	// Anything else logs at info.
	Level string
	// JSON writes one JSON object per line instead of the console format.
	JSON bool
	// NoColor disables ANSI colours in the console format.
	NoColor bool
	// File, when set, receives a colourless console copy of every entry.
	File io.Writer
}

// ParseLevel maps a level name onto a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToUpper(s) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// New returns a timestamped logger writing to out.
func New(out io.Writer, opts Options) zerolog.Logger {
	var w io.Writer = out
	if !opts.JSON {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    opts.NoColor,
		}
	}
	if opts.File != nil {
		w = zerolog.MultiLevelWriter(w, zerolog.ConsoleWriter{
			Out:        opts.File,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})
	}

	return zerolog.New(w).
		Level(ParseLevel(opts.Level)).
		With().Timestamp().Logger()
}

// Nop returns a logger that discards everything, for tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// Package logging builds the process logger. Library packages never log on
// their own; they receive a zerolog.Logger through options.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// DefaultLevel is used when the configured level is empty.
const DefaultLevel = zerolog.WarnLevel

// ParseLevel maps a configured level name to a zerolog level.
func ParseLevel(name string) (zerolog.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultLevel, nil
	}
	return zerolog.ParseLevel(name)
}

// New returns a logger writing to w at level. Terminals get the console
// writer; everything else gets JSON lines.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	out := w
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		out = zerolog.ConsoleWriter{Out: f, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// NewStderr builds the CLI logger from a configured level name.
func NewStderr(levelName string, verbose bool) (zerolog.Logger, error) {
	level, err := ParseLevel(levelName)
	if err != nil {
		return zerolog.Nop(), err
	}
	if verbose && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}
	return New(os.Stderr, level), nil
}

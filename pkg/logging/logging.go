// Package logging constructs the zerolog.Logger ashdb threads through
// its components, grounded on the logger construction helper pattern
// (explicit *zerolog.Logger field, never a package-level singleton) seen
// in the example corpus's internal/logger packages.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds a console-friendly logger writing to w (os.Stderr when w is
// nil) at the given level.
func New(w io.Writer, level zerolog.Level) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}).
		Level(level).
		With().
		Timestamp().
		Str("component", "ashdb").
		Logger()
}

// Nop returns a logger that discards everything, used as the zero-value
// default for components constructed without an explicit logger.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

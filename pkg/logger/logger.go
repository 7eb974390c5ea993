// Package logger provides opinionated structured logging for rolodex.
//
// Every component takes a *slog.Logger. The CLI builds one here: pretty
// charmbracelet/log output for terminals, slog JSON for services. Attributes
// carrying caller phone numbers can be masked with WithRedact.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
)

type config struct {
	level   slog.Level
	pretty  bool
	json    bool
	source  bool
	redact  []string
	writers []io.Writer
}

// New creates a *slog.Logger from opts. With no options it writes slog text
// records at Info level to os.Stdout.
func New(opts ...Option) *slog.Logger {
	c := &config{
		level: slog.LevelInfo,
	}
	for _, opt := range opts {
		opt(c)
	}

	var w io.Writer = os.Stdout
	switch len(c.writers) {
	case 0:
	case 1:
		w = c.writers[0]
	default:
		w = io.MultiWriter(c.writers...)
	}

	h := newHandler(w, c)
	if len(c.redact) > 0 {
		h = newRedactHandler(h, c.redact)
	}
	return slog.New(h)
}

func newHandler(w io.Writer, c *config) slog.Handler {
	switch {
	case c.pretty:
		return charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmLevel(c.level),
			ReportTimestamp: true,
			ReportCaller:    c.source,
			TimeFormat:      time.Kitchen,
		})
	case c.json:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     c.level,
			AddSource: c.source,
		})
	default:
		return slog.NewTextHandler(w, &slog.HandlerOptions{
			Level:     c.level,
			AddSource: c.source,
		})
	}
}

func charmLevel(l slog.Level) charmlog.Level {
	if l <= slog.LevelDebug {
		return charmlog.DebugLevel
	}
	return charmlog.InfoLevel
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

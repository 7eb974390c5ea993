package logger

import (
	"io"
	"log/slog"
)

// Option configures a logger built by New.
type Option func(*config)

// WithDebug lowers the level to Debug.
func WithDebug(debug bool) Option {
	return func(c *config) {
		c.level = slog.LevelInfo
		if debug {
			c.level = slog.LevelDebug
		}
	}
}

// WithPretty selects colorized charmbracelet/log output.
func WithPretty(pretty bool) Option {
	return func(c *config) { c.pretty = pretty }
}

// WithJSON selects slog JSON records. WithPretty wins when both are set.
func WithJSON(json bool) Option {
	return func(c *config) { c.json = json }
}

// WithWriter replaces the output writer.
func WithWriter(w io.Writer) Option {
	return func(c *config) { c.writers = []io.Writer{w} }
}

// WithWriters writes every record to each of w.
func WithWriters(w ...io.Writer) Option {
	return func(c *config) { c.writers = w }
}

func WithSource(source bool) Option {
	return func(c *config) { c.source = source }
}

// WithRedact masks the values of the named attributes, keeping only their
// last four characters. Nested groups are masked too.
func WithRedact(keys ...string) Option {
	return func(c *config) { c.redact = append(c.redact, keys...) }
}

// Package logging builds the structured logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseFormat accepts "text" or "json"; empty means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format '%s'", s)
	}
}

// ParseLevel accepts debug, info, warn or error; empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level '%s'", s)
	}
}

type options struct {
	format Format
	level  slog.Leveler
	output io.Writer
}

type Option func(*options)

func WithFormat(f Format) Option {
	return func(o *options) { o.format = f }
}

func WithLevel(l slog.Leveler) Option {
	return func(o *options) { o.level = l }
}

func WithOutput(w io.Writer) Option {
	return func(o *options) { o.output = w }
}

// New returns a logger writing text at info level to stderr unless
// overridden. Timestamps are RFC3339.
func New(opts ...Option) *slog.Logger {
	o := &options{
		format: FormatText,
		level:  slog.LevelInfo,
		output: os.Stderr,
	}
	for _, opt := range opts {
		opt(o)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       o.level,
		ReplaceAttr: formatTime,
	}

	var handler slog.Handler
	switch o.format {
	case FormatJSON:
		handler = slog.NewJSONHandler(o.output, handlerOpts)
	default:
		handler = slog.NewTextHandler(o.output, handlerOpts)
	}
	return slog.New(handler)
}

// FromStrings builds a logger from configuration values.
func FromStrings(
	format string,
	level string,
	output io.Writer,
) (
	*slog.Logger,
	error,
) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	l, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return New(WithFormat(f), WithLevel(l), WithOutput(output)), nil
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func formatTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		if t, ok := a.Value.Any().(time.Time); ok {
			a.Value = slog.StringValue(t.Format(time.RFC3339))
		}
	}
	return a
}

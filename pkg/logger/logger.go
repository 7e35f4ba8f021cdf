// Package logger configures the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Options struct {
	Service string
	Version string
	Env     string
	Level   string

	// Output defaults to stdout.
	Output io.Writer
}

// New installs and returns the default logger. Development gets slog's
// text format for reading in a terminal; every other environment logs JSON
// lines tagged with service, version and env. Debug level adds source
// locations.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	level := parseLevel(opts.Level)
	ho := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}

	var h slog.Handler
	if opts.Env == "development" {
		h = slog.NewTextHandler(out, ho)
	} else {
		h = slog.NewJSONHandler(out, ho)
	}

	attrs := []any{"service", opts.Service, "env", opts.Env}
	if opts.Version != "" {
		attrs = append(attrs, "version", opts.Version)
	}
	l := slog.New(h).With(attrs...)

	slog.SetDefault(l)
	return l
}

// parseLevel accepts slog level names ("debug", "INFO", "warn+2") plus the
// "warning" spelling; anything else is info.
func parseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

package cliutil

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// NewLogger builds the process logger from the --log-level and --log-format
// flag values. Format "auto" picks console output when stderr is a terminal
// and JSON otherwise, so piped and captured output stays machine readable.
func NewLogger(level, format string) (zerolog.Logger, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	writer, err := logWriter(format, os.Stderr)
	if err != nil {
		return zerolog.Nop(), err
	}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger(), nil
}

func parseLevel(level string) (zerolog.Level, error) {
	trimmed := strings.ToLower(strings.TrimSpace(level))
	if trimmed == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(trimmed)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("parse log level %q: %w", level, err)
	}
	return lvl, nil
}

func logWriter(format string, out *os.File) (io.Writer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "auto":
		if term.IsTerminal(int(out.Fd())) {
			return consoleWriter(out), nil
		}
		return out, nil
	case "console", "text":
		return consoleWriter(out), nil
	case "json":
		return out, nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func consoleWriter(out io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
}

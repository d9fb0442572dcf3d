package cliutil

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	defaultTailLines = 20
	defaultTailBytes = 2 << 20
)

// TailLines returns the last tailLines lines of the file at path, reading at
// most maxBytes from the end. When the read window starts mid-file the first
// partial line is dropped so callers only ever see complete lines.
func TailLines(path string, tailLines int, maxBytes int64) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("missing path")
	}
	if tailLines <= 0 {
		tailLines = defaultTailLines
	}
	if maxBytes <= 0 {
		maxBytes = defaultTailBytes
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log file: %w", err)
	}
	size := info.Size()
	start := int64(0)
	if size > maxBytes {
		start = size - maxBytes
	}

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek log file: %w", err)
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}
	if start > 0 {
		if i := bytes.IndexByte(b, '\n'); i >= 0 && i+1 < len(b) {
			b = b[i+1:]
		}
	}

	lines := strings.Split(string(b), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > tailLines {
		lines = append([]string{}, lines[len(lines)-tailLines:]...)
	}
	return lines, nil
}

// Package pidfile persists the launcher reference of the supervised process
// as plain text, so later invocations can find and manage it. The reference
// is a numeric pid for directly spawned processes; container and unit
// backends store their own identifiers.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Write records ref at path, creating parent directories as needed.
func Write(path, ref string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create pid file dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(ref+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Read returns the recorded reference. Missing files surface os.ErrNotExist
// so callers can treat absence as "nothing supervised".
func Read(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	ref := strings.TrimSpace(string(b))
	if ref == "" {
		return "", fmt.Errorf("pid file %s is empty", path)
	}
	return ref, nil
}

// PID reads the reference and parses it as a numeric pid.
func PID(path string) (int, error) {
	ref, err := Read(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(ref)
	if err != nil {
		return 0, fmt.Errorf("pid file %s does not hold a pid: %q", path, ref)
	}
	return pid, nil
}

// Remove deletes the pid file. Removing an absent file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

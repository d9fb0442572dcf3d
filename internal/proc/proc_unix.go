//go:build !windows

package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

const (
	pollInterval = 100 * time.Millisecond
	killWait     = 2 * time.Second
)

// Alive reports whether pid refers to a live process.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	if zombie(pid) {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	if errors.Is(err, syscall.EPERM) {
		return true
	}
	return false
}

func zombie(pid int) bool {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	// Format: pid (comm) state ... where comm may contain spaces, so the
	// state character follows the last ')'.
	i := bytes.LastIndexByte(b, ')')
	if i < 0 {
		return false
	}
	fields := bytes.Fields(bytes.TrimSpace(b[i+1:]))
	if len(fields) < 1 || len(fields[0]) < 1 {
		return false
	}
	return fields[0][0] == 'Z'
}

// TerminateGroup delivers SIGTERM to the process group of pid, waits up to
// grace for the process to exit and escalates to SIGKILL. The wait never
// extends past the context deadline.
func TerminateGroup(ctx context.Context, pid int, grace time.Duration) error {
	if pid <= 0 {
		return nil
	}
	target := pid
	if pgid, err := syscall.Getpgid(pid); err == nil && pgid > 0 {
		target = -pgid
	}
	if err := syscall.Kill(target, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return fmt.Errorf("signal %d: %w", pid, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < grace {
			grace = remaining
		}
	}
	if waitGone(ctx, pid, grace) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_ = syscall.Kill(target, syscall.SIGKILL)
	if waitGone(ctx, pid, killWait) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("process %d still alive after SIGKILL", pid)
}

// Kill delivers SIGKILL to the process group of pid without waiting.
func Kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	target := pid
	if pgid, err := syscall.Getpgid(pid); err == nil && pgid > 0 {
		target = -pgid
	}
	if err := syscall.Kill(target, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("kill %d: %w", pid, err)
	}
	return nil
}

func waitGone(ctx context.Context, pid int, window time.Duration) bool {
	if window <= 0 {
		return !Alive(pid)
	}
	deadline := time.Now().Add(window)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if !Alive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return !Alive(pid)
		case <-ticker.C:
		}
	}
}

//go:build windows

package proc

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"
)

const (
	pollInterval = 100 * time.Millisecond
	killWait     = 2 * time.Second
	stillActive  = 259
)

// Alive reports whether pid refers to a live process.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	handle, err := syscall.OpenProcess(syscall.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer syscall.CloseHandle(handle)
	var code uint32
	if err := syscall.GetExitCodeProcess(handle, &code); err != nil {
		return false
	}
	return code == stillActive
}

// TerminateGroup interrupts pid, waits up to grace and then kills it. Windows
// has no process groups to signal, so only the single process is targeted.
func TerminateGroup(ctx context.Context, pid int, grace time.Duration) error {
	if pid <= 0 {
		return nil
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	_ = process.Signal(os.Interrupt)

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

	_ = process.Kill()
	if waitGone(ctx, pid, killWait) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("process %d still alive after kill", pid)
}

// Kill terminates pid without waiting.
func Kill(pid int) error {
	if pid <= 0 {
		return nil
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := process.Kill(); err != nil && Alive(pid) {
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

// Package systemd delegates service lifecycle to the user's systemd instance
// over D-Bus. The unit owns the child process; warden only enqueues start and
// stop jobs and reads unit state back.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"

	"github.com/stackwatch/warden/internal/launcher"
)

const (
	pollInterval = 100 * time.Millisecond
	killWait     = 2 * time.Second
	propTimeout  = 2 * time.Second

	sigKill = int32(9)
)

type launcherImpl struct {
	conn     *dbus.Conn
	connOnce sync.Once
	connErr  error
}

// New returns a launcher that drives units on the user bus.
func New() launcher.Launcher {
	return &launcherImpl{}
}

func (l *launcherImpl) getConn(ctx context.Context) (*dbus.Conn, error) {
	l.connOnce.Do(func() {
		conn, err := dbus.NewUserConnectionContext(ctx)
		if err != nil {
			l.connErr = err
			return
		}
		l.conn = conn
	})
	return l.conn, l.connErr
}

func (l *launcherImpl) Start(ctx context.Context, spec launcher.StartSpec) (launcher.Handle, error) {
	if spec.Unit == "" {
		return nil, errors.New("systemd launcher requires a unit name")
	}
	conn, err := l.getConn(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to user bus: %w", err)
	}
	// A unit left in failed state refuses a plain start job.
	_ = conn.ResetFailedUnitContext(ctx, spec.Unit)
	if _, err := conn.StartUnitContext(ctx, spec.Unit, "replace", nil); err != nil {
		return nil, fmt.Errorf("start unit %s: %w", spec.Unit, err)
	}
	return &handle{conn: conn, unit: spec.Unit}, nil
}

func (l *launcherImpl) Attach(ctx context.Context, spec launcher.StartSpec, ref string) (launcher.Handle, error) {
	if ref == "" {
		return nil, errors.New("systemd launcher requires a unit name to attach")
	}
	conn, err := l.getConn(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to user bus: %w", err)
	}
	return &handle{conn: conn, unit: ref}, nil
}

type handle struct {
	conn *dbus.Conn
	unit string
}

func (h *handle) Ref() string {
	return h.unit
}

func (h *handle) PID() int {
	ctx, cancel := context.WithTimeout(context.Background(), propTimeout)
	defer cancel()
	prop, err := h.conn.GetServicePropertyContext(ctx, h.unit, "MainPID")
	if err != nil {
		return 0
	}
	pid, ok := prop.Value.Value().(uint32)
	if !ok {
		return 0
	}
	return int(pid)
}

func (h *handle) activeState(ctx context.Context) (string, error) {
	prop, err := h.conn.GetUnitPropertyContext(ctx, h.unit, "ActiveState")
	if err != nil {
		return "", err
	}
	state, ok := prop.Value.Value().(string)
	if !ok {
		return "", fmt.Errorf("unexpected ActiveState type %T", prop.Value.Value())
	}
	return state, nil
}

func (h *handle) Alive(ctx context.Context) bool {
	state, err := h.activeState(ctx)
	if err != nil {
		return false
	}
	return aliveState(state)
}

func aliveState(state string) bool {
	switch state {
	case "active", "activating", "reloading":
		return true
	}
	return false
}

// Stop enqueues a stop job, waits up to grace for the unit to leave the
// active states and escalates to SIGKILL. The wait never extends past the
// context deadline.
func (h *handle) Stop(ctx context.Context, grace time.Duration) error {
	if _, err := h.conn.StopUnitContext(ctx, h.unit, "replace", nil); err != nil {
		return fmt.Errorf("stop unit %s: %w", h.unit, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < grace {
			grace = remaining
		}
	}
	if h.waitInactive(ctx, grace) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_ = h.conn.KillUnitWithTarget(ctx, h.unit, dbus.All, sigKill)
	if h.waitInactive(ctx, killWait) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("unit %s still active after SIGKILL", h.unit)
}

func (h *handle) Kill(ctx context.Context) error {
	if err := h.conn.KillUnitWithTarget(ctx, h.unit, dbus.All, sigKill); err != nil {
		return fmt.Errorf("kill unit %s: %w", h.unit, err)
	}
	return nil
}

func (h *handle) waitInactive(ctx context.Context, window time.Duration) bool {
	if window <= 0 {
		return !h.Alive(ctx)
	}
	deadline := time.Now().Add(window)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if !h.Alive(ctx) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return !h.Alive(ctx)
		case <-ticker.C:
		}
	}
}

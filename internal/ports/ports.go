// Package ports answers who holds a TCP listen address and waits for
// addresses to become free, so a supervisor can reclaim its service port
// before launching.
package ports

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// ErrUnsupported is returned by Owner on platforms without the /proc
// interfaces needed to resolve a listener to a pid.
var ErrUnsupported = errors.New("ports: owner lookup unsupported on this platform")

const pollInterval = 100 * time.Millisecond

// Split parses a host:port address and returns its components.
func Split(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("parse address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("parse address %q: invalid port %q", addr, portStr)
	}
	return host, port, nil
}

// Listening reports whether addr is currently held by any listener. It binds
// the address as a test, so a true result includes wildcard binds that shadow
// the specific host.
func Listening(addr string) bool {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return true
	}
	ln.Close()
	return false
}

// WaitFree polls until addr can be bound or the context ends.
func WaitFree(ctx context.Context, addr string) error {
	if !Listening(addr) {
		return nil
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("address %s still in use: %w", addr, ctx.Err())
		case <-ticker.C:
			if !Listening(addr) {
				return nil
			}
		}
	}
}

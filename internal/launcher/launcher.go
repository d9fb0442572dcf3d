// Package launcher defines the backends warden can start a service through.
// A backend returns an owned handle for the running service, and can attach
// to a previously recorded reference so a fresh CLI invocation manages a
// process it did not spawn.
package launcher

import (
	"context"
	"time"

	"github.com/stackwatch/warden/internal/config"
)

// StartSpec carries the flattened launch inputs for a backend. Backends use
// the fields relevant to them and ignore the rest.
type StartSpec struct {
	Name        string
	Command     []string
	Image       string
	Unit        string
	Workdir     string
	Env         map[string]string
	Ports       []string
	BindAddress string
	LogFile     string
}

// NewStartSpec flattens a service definition into launch inputs.
func NewStartSpec(svc *config.Service) StartSpec {
	return StartSpec{
		Name:        svc.Name,
		Command:     append([]string(nil), svc.Command...),
		Image:       svc.Image,
		Unit:        svc.Unit,
		Workdir:     svc.Workdir,
		Env:         svc.Env,
		Ports:       append([]string(nil), svc.Ports...),
		BindAddress: svc.BindAddress,
		LogFile:     svc.LogFile,
	}
}

// Handle refers to a running (or recently running) service instance.
type Handle interface {
	// Ref returns the stable reference recorded in the pid file: the pid
	// for spawned processes, the container id or unit name otherwise.
	Ref() string

	// PID returns the host pid when known, zero otherwise.
	PID() int

	// Alive reports whether the instance is still running.
	Alive(ctx context.Context) bool

	// Stop terminates the instance gracefully, escalating to a forced
	// kill after the grace period. Stopping a dead instance is not an
	// error.
	Stop(ctx context.Context, grace time.Duration) error

	// Kill terminates the instance immediately.
	Kill(ctx context.Context) error
}

// Launcher is a backend capable of launching and re-attaching services.
type Launcher interface {
	// Start launches the service described by spec and returns a handle
	// to it. Implementations must not tie the child's lifetime to ctx;
	// the context only bounds the launch itself.
	Start(ctx context.Context, spec StartSpec) (Handle, error)

	// Attach reconstructs a handle from a recorded reference.
	Attach(ctx context.Context, spec StartSpec, ref string) (Handle, error)
}

// Registry maps launcher identifiers to their concrete implementations.
type Registry map[string]Launcher

// Clone returns a shallow copy of the registry, allowing callers to avoid
// accidental mutation of shared maps.
func (r Registry) Clone() Registry {
	dup := make(Registry, len(r))
	for k, v := range r {
		dup[k] = v
	}
	return dup
}

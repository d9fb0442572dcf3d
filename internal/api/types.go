// Package api defines the control surface exposed by a running warden
// process.
package api

import (
	stdcontext "context"
	"errors"
	"time"

	"github.com/stackwatch/warden/internal/supervisor"
)

var (
	ErrServiceNotRunning = errors.New("service not running")
	ErrRestartFailed     = errors.New("restart failed")
)

// StatusReport wraps the supervisor report for API consumers.
type StatusReport struct {
	Service     string            `json:"service"`
	GeneratedAt time.Time         `json:"generated_at"`
	Report      supervisor.Report `json:"report"`
}

// RestartResult captures the outcome of a restart operation.
type RestartResult struct {
	Service     string    `json:"service"`
	CompletedAt time.Time `json:"completed_at"`
	Healthy     bool      `json:"healthy"`
	Restarts    int       `json:"restarts"`
}

// Controller exposes supervisor operations required by control servers.
type Controller interface {
	Status(stdcontext.Context) (*StatusReport, error)
	Restart(stdcontext.Context) (*RestartResult, error)
}

package cli

import (
	stdcontext "context"
	"fmt"
	"time"

	"github.com/stackwatch/warden/internal/api"
	"github.com/stackwatch/warden/internal/supervisor"
)

// ControlAPI exposes supervisor operations for the HTTP control plane.
type ControlAPI struct {
	sup *supervisor.Supervisor
}

// NewControlAPI constructs a ControlAPI wrapper around a running supervisor.
func NewControlAPI(sup *supervisor.Supervisor) *ControlAPI {
	if sup == nil {
		return nil
	}
	return &ControlAPI{sup: sup}
}

// Status returns the current supervisor status snapshot.
func (ctrl *ControlAPI) Status(ctx stdcontext.Context) (*api.StatusReport, error) {
	if ctrl == nil || ctrl.sup == nil {
		return nil, fmt.Errorf("%w", api.ErrServiceNotRunning)
	}
	if ctx != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
	report := ctrl.sup.Status(ctx)
	return &api.StatusReport{
		Service:     report.Service,
		GeneratedAt: time.Now(),
		Report:      report,
	}, nil
}

// Restart cycles the supervised service and reports the post restart health.
func (ctrl *ControlAPI) Restart(ctx stdcontext.Context) (*api.RestartResult, error) {
	if ctrl == nil || ctrl.sup == nil {
		return nil, fmt.Errorf("%w", api.ErrServiceNotRunning)
	}
	if err := ctrl.sup.Restart(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", api.ErrRestartFailed, err)
	}
	report := ctrl.sup.Status(ctx)
	return &api.RestartResult{
		Service:     report.Service,
		CompletedAt: time.Now(),
		Healthy:     ctrl.sup.Healthy(ctx),
		Restarts:    report.Restarts,
	}, nil
}

// Ensure interface compliance at compile time.
var _ api.Controller = (*ControlAPI)(nil)

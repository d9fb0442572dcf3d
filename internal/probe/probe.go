// Package probe implements the health probes a supervisor polls to decide
// whether the supervised service is ready to serve.
package probe

import (
	"context"
	"errors"
	"time"

	"github.com/stackwatch/warden/internal/config"
)

// Prober performs a single readiness check. Implementations must honour
// context cancellation and return nil only when the service looks healthy.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context) error

// Probe implements Prober.
func (f ProberFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// New constructs a Prober for the supplied health configuration.
func New(spec *config.Health) (Prober, error) {
	if spec == nil {
		return nil, errors.New("probe: health configuration is required")
	}
	switch {
	case spec.HTTP != nil:
		return newHTTPProber(spec.HTTP), nil
	case spec.TCP != nil:
		return newTCPProber(spec.TCP), nil
	case spec.Command != nil:
		return newCommandProber(spec.Command)
	}
	return nil, errors.New("probe: no probe configured")
}

// Check runs one probe attempt bounded by timeout. A zero timeout leaves the
// caller's context in charge of cancellation.
func Check(ctx context.Context, prober Prober, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return prober.Probe(ctx)
}

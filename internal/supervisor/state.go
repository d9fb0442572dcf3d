package supervisor

import "time"

// State describes the supervisor's view of the service lifecycle.
type State string

const (
	StateStopped    State = "stopped"
	StateStarting   State = "starting"
	StateHealthy    State = "healthy"
	StateUnhealthy  State = "unhealthy"
	StateRestarting State = "restarting"
	StateFailed     State = "failed-permanently"
)

// Process identifies a running service as the launcher knows it. Ref is the
// backend reference recorded in the pidfile: the process id for exec, the
// container id for docker, the unit name for systemd.
type Process struct {
	Ref       string
	PID       int
	StartedAt time.Time
}

// Report is a point in time view of the supervised service.
type Report struct {
	Service   string    `json:"service"`
	State     State     `json:"state"`
	Healthy   bool      `json:"healthy"`
	Ref       string    `json:"ref,omitempty"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"startedAt,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	Restarts  int       `json:"restartsInWindow"`
	LastError string    `json:"lastError,omitempty"`
}

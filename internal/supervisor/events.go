package supervisor

import "time"

// EventType captures high level lifecycle notifications emitted by the
// supervisor.
type EventType string

const (
	EventTypeStarting   EventType = "starting"
	EventTypeStarted    EventType = "started"
	EventTypeHealthy    EventType = "healthy"
	EventTypeUnhealthy  EventType = "unhealthy"
	EventTypeRestarting EventType = "restarting"
	EventTypeStopped    EventType = "stopped"
	EventTypeCrashed    EventType = "crashed"
	EventTypeFailed     EventType = "failed"
)

// Event represents a single lifecycle notification.
type Event struct {
	Timestamp time.Time
	Service   string
	Type      EventType
	Message   string
	Err       error
	Attempt   int
	Reason    string
}

const (
	ReasonInitialStart    = "initial_start"
	ReasonRestart         = "restart"
	ReasonOperatorRestart = "operator_restart"
	ReasonStartFailure    = "start_failure"
	ReasonProcessExit     = "process_exit"
	ReasonProbeHealthy    = "probe_healthy"
	ReasonProbeUnhealthy  = "probe_unhealthy"
	ReasonBudgetExhausted = "budget_exhausted"
	ReasonShutdown        = "shutdown"
)

func sendEvent(events chan<- Event, service string, t EventType, message string, attempt int, reason string, err error) {
	if events == nil {
		return
	}
	events <- Event{
		Timestamp: time.Now(),
		Service:   service,
		Type:      t,
		Message:   message,
		Err:       err,
		Attempt:   attempt,
		Reason:    reason,
	}
}

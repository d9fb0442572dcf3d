package supervisor

import "errors"

var (
	// ErrPortInUse reports that the bind address could not be freed before a
	// start. The condition is recoverable; a later attempt may succeed.
	ErrPortInUse = errors.New("bind address in use")

	// ErrSpawn reports that the launcher failed to start the service. The
	// start call that produced it has failed for good.
	ErrSpawn = errors.New("spawn failed")

	// ErrHealthTimeout reports that the service did not become healthy within
	// the allotted probe attempts.
	ErrHealthTimeout = errors.New("service did not become healthy")

	// ErrRestartBudget reports that the rolling restart window is exhausted.
	// The supervisor gives up on the service once this is returned.
	ErrRestartBudget = errors.New("restart budget exhausted")
)

// Package proc inspects and terminates processes the supervisor does not
// necessarily own as children.
//
// Liveness uses signal 0 on unix platforms; EPERM counts as alive because the
// process exists even when it belongs to another user. Zombies count as dead
// since they can no longer serve traffic. Termination signals the whole
// process group first so shell wrappers take their children down with them,
// escalating from SIGTERM to SIGKILL after a grace period. On Windows the
// group semantics degrade to signalling the single process.
package proc

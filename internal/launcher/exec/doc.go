// Package exec launches services as detached local processes.
//
// Children are spawned in their own process group with stdin wired to
// /dev/null and both output streams appended to the service log file, so
// they survive the warden invocation that started them. The handle keeps no
// pipe to the child; liveness and termination go through the pid, which is
// also what Attach reconstructs a handle from after the original parent has
// exited.
package exec

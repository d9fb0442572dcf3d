//go:build !linux

package ports

// Owner is unsupported without /proc; callers fall back to waiting for the
// previous listener to exit on its own.
func Owner(port int) (int, error) {
	return 0, ErrUnsupported
}

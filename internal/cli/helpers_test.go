package cli

import (
	stdcontext "context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stackwatch/warden/internal/launcher"
)

// writeServiceFile persists a warden.yaml for command tests and returns its
// path. The state dir is pinned to a temp dir so defaulted pid and log paths
// never leave the test.
func writeServiceFile(t *testing.T, content string) string {
	t.Helper()
	t.Setenv("WARDEN_STATE_DIR", t.TempDir())
	path := filepath.Join(t.TempDir(), "warden.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write service file: %v", err)
	}
	return path
}

// serviceYAML renders a minimal exec service definition with fast timings.
func serviceYAML(t *testing.T, bindAddr, probeAddr, pidFile string) string {
	t.Helper()
	return fmt.Sprintf(`version: "1"
service:
  name: editor
  launcher: exec
  command: ["sleep", "60"]
  bindAddress: %s
  pidFile: %s
  stopTimeout: 100ms
health:
  tcp:
    address: %s
  interval: 20ms
  timeout: 200ms
  failureThreshold: 2
restart:
  settle: 1ms
  backoff:
    min: 5ms
    max: 20ms
    factor: 2
`, bindAddr, pidFile, probeAddr)
}

// freeAddr reserves an ephemeral port and releases it so the test config can
// reference an address nothing is listening on.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatalf("release port: %v", err)
	}
	return addr
}

// probeTarget starts a TCP listener that stands in for a healthy service.
func probeTarget(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listener: %v", err)
	}
	t.Cleanup(func() {
		ln.Close()
	})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	return ln.Addr().String()
}

type mockLauncher struct {
	mu       sync.Mutex
	starts   int
	startErr error
	handles  map[string]*mockHandle
}

func newMockLauncher() *mockLauncher {
	return &mockLauncher{handles: make(map[string]*mockHandle)}
}

func (l *mockLauncher) Start(ctx stdcontext.Context, spec launcher.StartSpec) (launcher.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.startErr != nil {
		return nil, l.startErr
	}
	l.starts++
	ref := fmt.Sprintf("proc-%d", l.starts)
	h := &mockHandle{l: l, ref: ref, pid: 4000 + l.starts, alive: true}
	l.handles[ref] = h
	return h, nil
}

func (l *mockLauncher) Attach(ctx stdcontext.Context, spec launcher.StartSpec, ref string) (launcher.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.handles[ref]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("unknown ref %s", ref)
}

// seed registers a handle as if an earlier invocation had started it.
func (l *mockLauncher) seed(ref string, pid int, alive bool) *mockHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := &mockHandle{l: l, ref: ref, pid: pid, alive: alive}
	l.handles[ref] = h
	return h
}

func (l *mockLauncher) startCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.starts
}

func (l *mockLauncher) handle(ref string) *mockHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handles[ref]
}

type mockHandle struct {
	l     *mockLauncher
	ref   string
	pid   int
	alive bool
	stops int
}

func (h *mockHandle) Ref() string {
	return h.ref
}

func (h *mockHandle) PID() int {
	return h.pid
}

func (h *mockHandle) Alive(ctx stdcontext.Context) bool {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	return h.alive
}

func (h *mockHandle) Stop(ctx stdcontext.Context, grace time.Duration) error {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	h.stops++
	h.alive = false
	return nil
}

func (h *mockHandle) Kill(ctx stdcontext.Context) error {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	h.alive = false
	return nil
}

func (h *mockHandle) stopCount() int {
	h.l.mu.Lock()
	defer h.l.mu.Unlock()
	return h.stops
}

// testContext builds a CLI context backed by the mock launcher so commands
// never fork real processes.
func testContext(configPath string, fl *mockLauncher) *context {
	return &context{
		configFile: &configPath,
		launchers:  launcher.Registry{"exec": fl},
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

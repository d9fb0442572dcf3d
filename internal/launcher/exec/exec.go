package exec

import (
	"context"
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/stackwatch/warden/internal/launcher"
	"github.com/stackwatch/warden/internal/proc"
)

type launcherImpl struct{}

// New constructs a launcher that executes services as detached local
// processes.
func New() launcher.Launcher {
	return &launcherImpl{}
}

func (l *launcherImpl) Start(ctx context.Context, spec launcher.StartSpec) (launcher.Handle, error) {
	if len(spec.Command) == 0 {
		return nil, fmt.Errorf("exec launcher for service %s requires a command", spec.Name)
	}
	path, err := osexec.LookPath(spec.Command[0])
	if err != nil {
		return nil, fmt.Errorf("locate executable %q: %w", spec.Command[0], err)
	}

	logFile, err := openLogFile(spec.LogFile)
	if err != nil {
		return nil, err
	}
	devNull, err := os.OpenFile(os.DevNull, os.O_RDONLY, 0)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("open %s: %w", os.DevNull, err)
	}

	// Plain Command rather than CommandContext: the child must not die
	// with the CLI invocation that spawned it.
	cmd := osexec.Command(path, spec.Command[1:]...)
	cmd.Dir = spec.Workdir
	cmd.Env = mergeEnviron(os.Environ(), spec.Env)
	cmd.Stdin = devNull
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	configureSysProcAttr(cmd)

	err = cmd.Start()
	devNull.Close()
	logFile.Close()
	if err != nil {
		return nil, fmt.Errorf("start service %s: %w", spec.Name, err)
	}

	// Reap the child when it exits so the pid does not linger as a zombie
	// for as long as this process lives.
	go func() { _ = cmd.Wait() }()

	return &handle{pid: cmd.Process.Pid}, nil
}

func (l *launcherImpl) Attach(ctx context.Context, spec launcher.StartSpec, ref string) (launcher.Handle, error) {
	pid, err := strconv.Atoi(ref)
	if err != nil {
		return nil, fmt.Errorf("exec launcher ref %q is not a pid", ref)
	}
	if pid <= 0 {
		return nil, fmt.Errorf("exec launcher ref %q is not a valid pid", ref)
	}
	return &handle{pid: pid}, nil
}

func openLogFile(path string) (*os.File, error) {
	if path == "" {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func mergeEnviron(base []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return base
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	merged := append([]string(nil), base...)
	for _, k := range keys {
		merged = append(merged, fmt.Sprintf("%s=%s", k, overrides[k]))
	}
	return merged
}

type handle struct {
	pid int
}

func (h *handle) Ref() string {
	return strconv.Itoa(h.pid)
}

func (h *handle) PID() int {
	return h.pid
}

func (h *handle) Alive(ctx context.Context) bool {
	return proc.Alive(h.pid)
}

func (h *handle) Stop(ctx context.Context, grace time.Duration) error {
	return proc.TerminateGroup(ctx, h.pid, grace)
}

func (h *handle) Kill(ctx context.Context) error {
	return proc.Kill(h.pid)
}

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stackwatch/warden/internal/config"
	"github.com/stackwatch/warden/internal/launcher"
	"github.com/stackwatch/warden/internal/pidfile"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Version: "1",
		Service: &config.Service{
			Name:        "editor",
			Launcher:    "fake",
			Command:     []string{"/usr/bin/editor"},
			BindAddress: "127.0.0.1:0",
			PidFile:     filepath.Join(dir, "editor.pid"),
			StopTimeout: config.Duration{Duration: 100 * time.Millisecond},
		},
		Health: &config.Health{
			TCP:              &config.TCPProbeSpec{Address: "127.0.0.1:0"},
			Interval:         config.Duration{Duration: 15 * time.Millisecond},
			Timeout:          config.Duration{Duration: 50 * time.Millisecond},
			FailureThreshold: 2,
			SuccessThreshold: 1,
		},
		Restart: &config.Restart{
			Window: config.Duration{Duration: time.Minute},
			Backoff: &config.BackoffSpec{
				Min:    config.Duration{Duration: 10 * time.Millisecond},
				Max:    config.Duration{Duration: 80 * time.Millisecond},
				Factor: 2,
			},
		},
	}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatalf("apply defaults: %v", err)
	}
	return cfg
}

func newTestSupervisor(t *testing.T, cfg *config.Config, fl *fakeLauncher, events chan Event) *Supervisor {
	t.Helper()
	opts := []Option{}
	if events != nil {
		opts = append(opts, WithEvents(events))
	}
	sup, err := New(cfg, launcher.Registry{"fake": fl}, opts...)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	sup.jitter = func(d time.Duration) time.Duration { return d }
	sup.sleep = func(ctx context.Context, d time.Duration) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return nil
	}
	return sup
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartRecordsProcessAndPidfile(t *testing.T) {
	cfg := testConfig(t)
	fl := newFakeLauncher(newFakeHandle("4242", 4242))
	sup := newTestSupervisor(t, cfg, fl, nil)
	sup.prober = &scriptedProbe{}

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	ref, err := pidfile.Read(cfg.Service.PidFile)
	if err != nil {
		t.Fatalf("read pidfile: %v", err)
	}
	if got, want := ref, "4242"; got != want {
		t.Fatalf("pidfile ref = %q, want %q", got, want)
	}
	if got, want := sup.currentState(), StateStarting; got != want {
		t.Fatalf("state = %v, want %v", got, want)
	}

	report := sup.Status(context.Background())
	if report.Ref != "4242" || report.PID != 4242 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestStartStopsRecordedProcess(t *testing.T) {
	cfg := testConfig(t)
	old := newFakeHandle("old-ref", 41)
	fl := newFakeLauncher(newFakeHandle("new-ref", 42))
	fl.attached["old-ref"] = old
	if err := pidfile.Write(cfg.Service.PidFile, "old-ref"); err != nil {
		t.Fatalf("seed pidfile: %v", err)
	}

	sup := newTestSupervisor(t, cfg, fl, nil)
	sup.prober = &scriptedProbe{}

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	if got, want := old.stopCount(), 1; got != want {
		t.Fatalf("old instance stops = %d, want %d", got, want)
	}
	ref, err := pidfile.Read(cfg.Service.PidFile)
	if err != nil {
		t.Fatalf("read pidfile: %v", err)
	}
	if got, want := ref, "new-ref"; got != want {
		t.Fatalf("pidfile ref = %q, want %q", got, want)
	}
}

func TestStartSpawnFailure(t *testing.T) {
	cfg := testConfig(t)
	fl := newFakeLauncher()
	fl.outcomes = append(fl.outcomes, startOutcome{err: errors.New("exec format error")})
	sup := newTestSupervisor(t, cfg, fl, nil)
	sup.prober = &scriptedProbe{fallback: errors.New("down")}

	err := sup.Start(context.Background())
	if !errors.Is(err, ErrSpawn) {
		t.Fatalf("expected ErrSpawn, got %v", err)
	}
	if got, want := sup.currentState(), StateStopped; got != want {
		t.Fatalf("state = %v, want %v", got, want)
	}
	report := sup.Status(context.Background())
	if report.LastError == "" {
		t.Fatal("expected last error in report")
	}
}

func TestStartPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	cfg := testConfig(t)
	cfg.Service.BindAddress = ln.Addr().String()
	cfg.Service.PidFile = ""

	fl := newFakeLauncher(newFakeHandle("1", 1))
	sup := newTestSupervisor(t, cfg, fl, nil)
	sup.prober = &scriptedProbe{}
	sup.portWait = 50 * time.Millisecond

	err = sup.Start(context.Background())
	if !errors.Is(err, ErrPortInUse) {
		t.Fatalf("expected ErrPortInUse, got %v", err)
	}
	if got, want := fl.startCount(), 0; got != want {
		t.Fatalf("launcher starts = %d, want %d", got, want)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	h := newFakeHandle("7", 7)
	fl := newFakeLauncher(h)
	sup := newTestSupervisor(t, cfg, fl, nil)
	sup.prober = &scriptedProbe{}

	if err := sup.Stop(context.Background()); err != nil {
		t.Fatalf("stop before start: %v", err)
	}

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sup.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got, want := h.stopCount(), 1; got != want {
		t.Fatalf("stops = %d, want %d", got, want)
	}
	if _, err := pidfile.Read(cfg.Service.PidFile); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected pidfile removed, got %v", err)
	}
	if got, want := sup.currentState(), StateStopped; got != want {
		t.Fatalf("state = %v, want %v", got, want)
	}

	if err := sup.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if got, want := h.stopCount(), 1; got != want {
		t.Fatalf("stops after second stop = %d, want %d", got, want)
	}
}

func TestHealthySingleProbe(t *testing.T) {
	cfg := testConfig(t)
	fl := newFakeLauncher()
	sup := newTestSupervisor(t, cfg, fl, nil)

	probe := &scriptedProbe{script: []error{errors.New("connection refused")}}
	sup.prober = probe

	if sup.Healthy(context.Background()) {
		t.Fatal("expected unhealthy")
	}
	if got, want := probe.callCount(), 1; got != want {
		t.Fatalf("probe calls = %d, want %d", got, want)
	}
	if !sup.Healthy(context.Background()) {
		t.Fatal("expected healthy")
	}
}

func TestWaitHealthyBoundedAttempts(t *testing.T) {
	cfg := testConfig(t)
	fl := newFakeLauncher()
	sup := newTestSupervisor(t, cfg, fl, nil)

	probe := &scriptedProbe{fallback: errors.New("down")}
	sup.prober = probe

	err := sup.WaitHealthy(context.Background(), 3)
	if !errors.Is(err, ErrHealthTimeout) {
		t.Fatalf("expected ErrHealthTimeout, got %v", err)
	}
	if got, want := probe.callCount(), 3; got != want {
		t.Fatalf("probe calls = %d, want %d", got, want)
	}
}

func TestWaitHealthySucceedsMidway(t *testing.T) {
	cfg := testConfig(t)
	fl := newFakeLauncher()
	sup := newTestSupervisor(t, cfg, fl, nil)

	probe := &scriptedProbe{script: []error{errors.New("starting up")}}
	sup.prober = probe

	if err := sup.WaitHealthy(context.Background(), 5); err != nil {
		t.Fatalf("wait healthy: %v", err)
	}
	if got, want := probe.callCount(), 2; got != want {
		t.Fatalf("probe calls = %d, want %d", got, want)
	}
}

func TestWaitHealthyIntervalOverride(t *testing.T) {
	cfg := testConfig(t)
	fl := newFakeLauncher()
	sup, err := New(cfg, launcher.Registry{"fake": fl}, WithWaitInterval(7*time.Millisecond))
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}

	var mu sync.Mutex
	var slept []time.Duration
	sup.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		slept = append(slept, d)
		mu.Unlock()
		return nil
	}
	sup.prober = &scriptedProbe{fallback: errors.New("down")}

	if err := sup.WaitHealthy(context.Background(), 3); !errors.Is(err, ErrHealthTimeout) {
		t.Fatalf("expected ErrHealthTimeout, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(slept) != 2 {
		t.Fatalf("expected a pause between each attempt, got %v", slept)
	}
	for _, d := range slept {
		if d != 7*time.Millisecond {
			t.Fatalf("expected the override interval between probes, got %v", slept)
		}
	}
}

func TestRestartCyclesProcess(t *testing.T) {
	cfg := testConfig(t)
	first := newFakeHandle("first", 10)
	second := newFakeHandle("second", 11)
	fl := newFakeLauncher(first, second)

	var delays []time.Duration
	var delayMu sync.Mutex
	sup := newTestSupervisor(t, cfg, fl, nil)
	sup.prober = &scriptedProbe{}
	sup.sleep = func(ctx context.Context, d time.Duration) error {
		delayMu.Lock()
		delays = append(delays, d)
		delayMu.Unlock()
		return nil
	}

	if err := sup.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sup.Restart(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}

	if got, want := first.stopCount(), 1; got != want {
		t.Fatalf("first stops = %d, want %d", got, want)
	}
	if got, want := fl.startCount(), 2; got != want {
		t.Fatalf("starts = %d, want %d", got, want)
	}

	delayMu.Lock()
	settled := false
	for _, d := range delays {
		if d == cfg.Restart.Settle.Duration {
			settled = true
		}
	}
	delayMu.Unlock()
	if !settled {
		t.Fatalf("expected settle delay %v in %v", cfg.Restart.Settle.Duration, delays)
	}

	report := sup.Status(context.Background())
	if got, want := report.Ref, "second"; got != want {
		t.Fatalf("report ref = %q, want %q", got, want)
	}
}

func TestRunRestartsAfterFailureThreshold(t *testing.T) {
	cfg := testConfig(t)
	first := newFakeHandle("first", 10)
	second := newFakeHandle("second", 11)
	fl := newFakeLauncher(first, second)
	events := make(chan Event, 64)

	sup := newTestSupervisor(t, cfg, fl, events)
	sup.prober = &scriptedProbe{script: []error{
		errors.New("probe failed"),
		errors.New("probe failed"),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool {
		return fl.startCount() == 2 && sup.currentState() == StateHealthy
	}, "timed out waiting for restart and recovery")

	report := sup.Status(context.Background())
	if got, want := report.Restarts, 1; got != want {
		t.Fatalf("restarts in window = %d, want %d", got, want)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned %v", err)
	}

	types := drainEvents(events)
	if !containsSequence(types, []EventType{EventTypeStarted, EventTypeRestarting, EventTypeStarted, EventTypeHealthy}) {
		t.Fatalf("expected restart sequence, got %v", types)
	}
	if got, want := first.stopCount(), 1; got != want {
		t.Fatalf("first stops = %d, want %d", got, want)
	}
}

func TestRunRestartsCrashedProcess(t *testing.T) {
	cfg := testConfig(t)
	first := newFakeHandle("first", 10)
	second := newFakeHandle("second", 11)
	fl := newFakeLauncher(first, second)
	events := make(chan Event, 64)

	sup := newTestSupervisor(t, cfg, fl, events)
	sup.prober = &scriptedProbe{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool {
		return sup.currentState() == StateHealthy
	}, "timed out waiting for initial health")

	first.setAlive(false)

	waitFor(t, 2*time.Second, func() bool {
		return fl.startCount() == 2 && sup.currentState() == StateHealthy
	}, "timed out waiting for crash recovery")

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned %v", err)
	}

	if got, want := first.stopCount(), 0; got != want {
		t.Fatalf("crashed instance stops = %d, want %d", got, want)
	}
	types := drainEvents(events)
	if !containsSequence(types, []EventType{EventTypeHealthy, EventTypeCrashed, EventTypeStarted, EventTypeHealthy}) {
		t.Fatalf("expected crash recovery sequence, got %v", types)
	}
}

func TestRunStopsAfterRestartBudget(t *testing.T) {
	cfg := testConfig(t)
	two := 2
	cfg.Restart.MaxRestarts = &two
	cfg.Health.FailureThreshold = 1

	fl := newFakeLauncher(
		newFakeHandle("a", 1),
		newFakeHandle("b", 2),
		newFakeHandle("c", 3),
	)
	events := make(chan Event, 64)

	sup := newTestSupervisor(t, cfg, fl, events)
	sup.prober = &scriptedProbe{fallback: errors.New("never healthy")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not give up")
	}

	if !errors.Is(err, ErrRestartBudget) {
		t.Fatalf("expected ErrRestartBudget, got %v", err)
	}
	if got, want := sup.currentState(), StateFailed; got != want {
		t.Fatalf("state = %v, want %v", got, want)
	}
	if got, want := fl.startCount(), 3; got != want {
		t.Fatalf("starts = %d, want %d", got, want)
	}
	types := drainEvents(events)
	if !containsSequence(types, []EventType{EventTypeRestarting, EventTypeRestarting, EventTypeFailed}) {
		t.Fatalf("expected budget exhaustion sequence, got %v", types)
	}
}

func TestRunCancelLeavesServiceRunning(t *testing.T) {
	cfg := testConfig(t)
	h := newFakeHandle("editor", 99)
	fl := newFakeLauncher(h)

	sup := newTestSupervisor(t, cfg, fl, nil)
	sup.prober = &scriptedProbe{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool {
		return sup.currentState() == StateHealthy
	}, "timed out waiting for health")

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned %v", err)
	}

	if !h.aliveNow() {
		t.Fatal("service should survive supervisor shutdown")
	}
	if got, want := h.stopCount(), 0; got != want {
		t.Fatalf("stops = %d, want %d", got, want)
	}
	if _, err := pidfile.Read(cfg.Service.PidFile); err != nil {
		t.Fatalf("pidfile should remain: %v", err)
	}
}

func TestRunRetriesFailedStartWithBackoff(t *testing.T) {
	cfg := testConfig(t)
	fl := newFakeLauncher()
	fl.outcomes = append(fl.outcomes,
		startOutcome{err: errors.New("boom")},
		startOutcome{err: errors.New("boom")},
		startOutcome{err: errors.New("boom")},
		startOutcome{handle: newFakeHandle("ok", 5)},
	)

	var delays []time.Duration
	var delayMu sync.Mutex
	sup := newTestSupervisor(t, cfg, fl, nil)
	sup.prober = &scriptedProbe{}
	sup.sleep = func(ctx context.Context, d time.Duration) error {
		if d > 0 {
			delayMu.Lock()
			delays = append(delays, d)
			delayMu.Unlock()
		}
		return ctx.Err()
	}

	backoff := sup.restartPolicy().min
	if err := sup.superviseStart(context.Background(), ReasonInitialStart, &backoff); err != nil {
		t.Fatalf("supervise start: %v", err)
	}

	expected := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
	}
	delayMu.Lock()
	defer delayMu.Unlock()
	if len(delays) != len(expected) {
		t.Fatalf("expected %d backoff delays, got %d (%v)", len(expected), len(delays), delays)
	}
	for i, d := range expected {
		if delays[i] != d {
			t.Fatalf("delay %d: expected %v, got %v", i, d, delays[i])
		}
	}
	if got, want := fl.startCount(), 4; got != want {
		t.Fatalf("starts = %d, want %d", got, want)
	}
}

func TestUpdateSpecRejectsRename(t *testing.T) {
	cfg := testConfig(t)
	fl := newFakeLauncher()
	sup := newTestSupervisor(t, cfg, fl, nil)

	next := cfg.Clone()
	next.Service.Name = "other"
	if err := sup.UpdateSpec(next); err == nil {
		t.Fatal("expected rename rejection")
	}

	next = cfg.Clone()
	next.Health.FailureThreshold = 9
	if err := sup.UpdateSpec(next); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got, want := sup.failureThreshold(), 9; got != want {
		t.Fatalf("failure threshold = %d, want %d", got, want)
	}
}

func TestRestartBudgetWindowExpires(t *testing.T) {
	cfg := testConfig(t)
	two := 2
	cfg.Restart.MaxRestarts = &two
	fl := newFakeLauncher()
	sup := newTestSupervisor(t, cfg, fl, nil)
	sup.prober = &scriptedProbe{}

	base := time.Now()
	current := base
	sup.now = func() time.Time { return current }

	sup.recordRestart()
	sup.recordRestart()
	if sup.allowRestart() {
		t.Fatal("budget should be exhausted")
	}

	current = base.Add(cfg.Restart.Window.Duration + time.Second)
	if !sup.allowRestart() {
		t.Fatal("budget should replenish after the window passes")
	}
}

func containsSequence(events []EventType, seq []EventType) bool {
	if len(seq) == 0 {
		return true
	}
	idx := 0
	for _, t := range events {
		if t == seq[idx] {
			idx++
			if idx == len(seq) {
				return true
			}
		}
	}
	return false
}

func drainEvents(events chan Event) []EventType {
	var types []EventType
	for {
		select {
		case evt := <-events:
			types = append(types, evt.Type)
		default:
			return types
		}
	}
}

type startOutcome struct {
	handle *fakeHandle
	err    error
}

type fakeLauncher struct {
	mu       sync.Mutex
	outcomes []startOutcome
	starts   int
	attached map[string]*fakeHandle
	lastSpec launcher.StartSpec
}

func newFakeLauncher(handles ...*fakeHandle) *fakeLauncher {
	fl := &fakeLauncher{attached: make(map[string]*fakeHandle)}
	for _, h := range handles {
		fl.outcomes = append(fl.outcomes, startOutcome{handle: h})
	}
	return fl
}

func (l *fakeLauncher) Start(ctx context.Context, spec launcher.StartSpec) (launcher.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts++
	l.lastSpec = spec
	if len(l.outcomes) == 0 {
		return nil, errors.New("no instances scripted")
	}
	out := l.outcomes[0]
	l.outcomes = l.outcomes[1:]
	if out.err != nil {
		return nil, out.err
	}
	return out.handle, nil
}

func (l *fakeLauncher) Attach(ctx context.Context, spec launcher.StartSpec, ref string) (launcher.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.attached[ref]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("unknown ref %q", ref)
}

func (l *fakeLauncher) startCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.starts
}

type fakeHandle struct {
	mu    sync.Mutex
	ref   string
	pid   int
	alive bool
	stops int
}

func newFakeHandle(ref string, pid int) *fakeHandle {
	return &fakeHandle{ref: ref, pid: pid, alive: true}
}

func (h *fakeHandle) Ref() string { return h.ref }

func (h *fakeHandle) PID() int { return h.pid }

func (h *fakeHandle) Alive(ctx context.Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alive
}

func (h *fakeHandle) Stop(ctx context.Context, grace time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	h.alive = false
	return nil
}

func (h *fakeHandle) Kill(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alive = false
	return nil
}

func (h *fakeHandle) setAlive(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alive = v
}

func (h *fakeHandle) aliveNow() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alive
}

func (h *fakeHandle) stopCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stops
}

type scriptedProbe struct {
	mu       sync.Mutex
	script   []error
	fallback error
	calls    int
}

func (p *scriptedProbe) Probe(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if len(p.script) > 0 {
		err := p.script[0]
		p.script = p.script[1:]
		return err
	}
	return p.fallback
}

func (p *scriptedProbe) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

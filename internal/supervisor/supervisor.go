// Package supervisor owns the lifecycle of a single configured service. It
// starts the service through a launcher backend, probes its health endpoint,
// restarts it when probes fail and gives up once the rolling restart budget
// is spent.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackwatch/warden/internal/config"
	"github.com/stackwatch/warden/internal/launcher"
	"github.com/stackwatch/warden/internal/metrics"
	"github.com/stackwatch/warden/internal/pidfile"
	"github.com/stackwatch/warden/internal/ports"
	"github.com/stackwatch/warden/internal/proc"
	"github.com/stackwatch/warden/internal/probe"
)

const (
	portFreeTimeout     = 5 * time.Second
	stopSlack           = 5 * time.Second
	defaultWaitAttempts = 30
)

type restartPolicy struct {
	maxRestarts int
	window      time.Duration
	min         time.Duration
	max         time.Duration
	factor      float64
}

func derivePolicy(rc *config.Restart) restartPolicy {
	pol := restartPolicy{
		maxRestarts: config.DefaultMaxRestarts,
		window:      10 * time.Minute,
		min:         time.Second,
		max:         30 * time.Second,
		factor:      2,
	}
	if rc == nil {
		return pol
	}
	pol.maxRestarts = rc.MaxRestartCount()
	if rc.Window.Duration > 0 {
		pol.window = rc.Window.Duration
	}
	if b := rc.Backoff; b != nil {
		if b.Min.Duration > 0 {
			pol.min = b.Min.Duration
		}
		if b.Max.Duration > 0 {
			pol.max = b.Max.Duration
		}
		if b.Factor > 0 {
			pol.factor = b.Factor
		}
	}
	if pol.min <= 0 {
		pol.min = time.Second
	}
	if pol.max < pol.min {
		pol.max = pol.min
	}
	if pol.factor <= 1 {
		pol.factor = 2
	}
	return pol
}

func defaultJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	// Full jitter: random duration in [0, d].
	return time.Duration(rand.Float64() * float64(d))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Supervisor manages one service. Its methods are safe for concurrent use;
// start, stop and restart are serialized against each other.
type Supervisor struct {
	logger    zerolog.Logger
	launchers launcher.Registry
	events    chan<- Event

	jitter       func(time.Duration) time.Duration
	sleep        func(context.Context, time.Duration) error
	now          func() time.Time
	portWait     time.Duration
	waitInterval time.Duration

	// opMu serializes whole start/stop/restart operations. mu guards the
	// fields below and is never held across a launcher or probe call.
	opMu sync.Mutex
	mu   sync.Mutex

	cfg      *config.Config
	prober   probe.Prober
	policy   restartPolicy
	state    State
	proc     *Process
	handle   launcher.Handle
	restarts []time.Time
	lastErr  error
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithLogger routes supervisor logging through the provided logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// WithEvents delivers lifecycle events to ch. Sends block until the consumer
// drains them.
func WithEvents(ch chan<- Event) Option {
	return func(s *Supervisor) { s.events = ch }
}

// WithWaitInterval overrides the pause between WaitHealthy probe attempts.
// Zero keeps the configured health interval.
func WithWaitInterval(d time.Duration) Option {
	return func(s *Supervisor) { s.waitInterval = d }
}

// New builds a Supervisor for the service described by cfg. The registry
// decides which launcher backend runs it.
func New(cfg *config.Config, launchers launcher.Registry, opts ...Option) (*Supervisor, error) {
	if cfg == nil || cfg.Service == nil {
		return nil, errors.New("supervisor requires a service configuration")
	}
	prober, err := probe.New(cfg.Health)
	if err != nil {
		return nil, err
	}
	s := &Supervisor{
		logger:    zerolog.Nop(),
		launchers: launchers,
		cfg:       cfg.Clone(),
		prober:    prober,
		policy:    derivePolicy(cfg.Restart),
		state:     StateStopped,
		jitter:    defaultJitter,
		sleep:     sleepWithContext,
		now:       time.Now,
		portWait:  portFreeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// UpdateSpec swaps in a new configuration, typically after a hot reload. The
// service name must not change; probe and threshold changes apply to the next
// probe cycle.
func (s *Supervisor) UpdateSpec(cfg *config.Config) error {
	if cfg == nil || cfg.Service == nil {
		return errors.New("update requires a service configuration")
	}
	prober, err := probe.New(cfg.Health)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.Service.Name != s.cfg.Service.Name {
		return fmt.Errorf("service name changed from %q to %q, restart required", s.cfg.Service.Name, cfg.Service.Name)
	}
	s.cfg = cfg.Clone()
	s.prober = prober
	s.policy = derivePolicy(cfg.Restart)
	return nil
}

// Start frees the bind address, launches the service and records its
// reference. It returns once the process is spawned; it does not wait for
// the service to become healthy.
func (s *Supervisor) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.startLocked(ctx, ReasonInitialStart)
}

// Stop terminates the recorded service and removes its pidfile. Stopping a
// service that is not running is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	return s.stopLocked(ctx, ReasonShutdown)
}

// Restart stops the service, waits the settle delay and starts it again.
// Operator restarts do not count against the supervision restart budget.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.setState(StateRestarting)
	s.emit(EventTypeRestarting, "restarting service", ReasonOperatorRestart, nil)
	if err := s.stopLocked(ctx, ReasonRestart); err != nil {
		return err
	}
	if err := s.sleep(ctx, s.settleDelay()); err != nil {
		return err
	}
	return s.startLocked(ctx, ReasonRestart)
}

// Healthy runs a single probe attempt bounded by the configured timeout. It
// reports false on any probe failure and never blocks past the timeout.
func (s *Supervisor) Healthy(ctx context.Context) bool {
	s.mu.Lock()
	prober := s.prober
	timeout := s.cfg.Health.Timeout.Duration
	name := s.cfg.Service.Name
	s.mu.Unlock()

	start := s.now()
	err := probe.Check(ctx, prober, timeout)
	metrics.ObserveProbeLatency(name, s.now().Sub(start))
	return err == nil
}

// WaitHealthy probes until the service reports healthy, sleeping the probe
// interval between attempts. It gives up after attempts probes (a default is
// applied for attempts <= 0) or when ctx is cancelled.
func (s *Supervisor) WaitHealthy(ctx context.Context, attempts int) error {
	if attempts <= 0 {
		attempts = defaultWaitAttempts
	}
	interval := s.waitInterval
	if interval <= 0 {
		interval = s.healthInterval()
	}
	for i := 0; i < attempts; i++ {
		if s.Healthy(ctx) {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if err := s.sleep(ctx, interval); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrHealthTimeout, attempts)
}

// Run supervises the service until ctx is cancelled or the restart budget is
// exhausted. Cancelling ctx stops supervision only; the service itself keeps
// running.
func (s *Supervisor) Run(ctx context.Context) error {
	s.adoptRecorded(ctx)

	backoff := s.restartPolicy().min
	if !s.processAlive(ctx) {
		if err := s.superviseStart(ctx, ReasonInitialStart, &backoff); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		// Hold off probing until the service has had its boot window.
		if err := s.sleep(ctx, s.gracePeriod()); err != nil {
			return nil
		}
	}

	interval := s.healthInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var healthyStreak, failStreak int

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if cur := s.healthInterval(); cur != interval {
			interval = cur
			ticker.Reset(interval)
		}

		if !s.processAlive(ctx) {
			s.logger.Warn().Str("service", s.serviceName()).Msg("service process exited")
			s.emit(EventTypeCrashed, "service process exited", ReasonProcessExit, nil)
			healthyStreak, failStreak = 0, 0
			if err := s.restartSupervised(ctx, ReasonProcessExit, &backoff); err != nil {
				return err
			}
			continue
		}

		if s.Healthy(ctx) {
			failStreak = 0
			healthyStreak++
			if healthyStreak >= s.successThreshold() && s.currentState() != StateHealthy {
				s.setState(StateHealthy)
				s.emit(EventTypeHealthy, "service healthy", ReasonProbeHealthy, nil)
				metrics.SetServiceHealthy(s.serviceName(), true)
				s.logger.Info().Str("service", s.serviceName()).Msg("service healthy")
				backoff = s.restartPolicy().min
			}
			continue
		}

		healthyStreak = 0
		failStreak++
		s.logger.Debug().Str("service", s.serviceName()).Int("failures", failStreak).Msg("probe failed")
		if s.currentState() == StateHealthy {
			s.setState(StateUnhealthy)
			s.emit(EventTypeUnhealthy, "service unhealthy", ReasonProbeUnhealthy, nil)
			metrics.SetServiceHealthy(s.serviceName(), false)
		}
		if failStreak >= s.failureThreshold() {
			healthyStreak, failStreak = 0, 0
			if err := s.restartSupervised(ctx, ReasonProbeUnhealthy, &backoff); err != nil {
				return err
			}
		}
	}
}

// Status reconciles the recorded state against what the launcher and probe
// report right now.
func (s *Supervisor) Status(ctx context.Context) Report {
	s.adoptRecorded(ctx)
	alive := s.processAlive(ctx)
	healthy := false
	if alive {
		healthy = s.Healthy(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case alive && healthy:
		s.state = StateHealthy
	case alive && s.state == StateHealthy:
		s.state = StateUnhealthy
	case !alive && s.state != StateFailed:
		s.state = StateStopped
	}

	report := Report{
		Service:  s.cfg.Service.Name,
		State:    s.state,
		Healthy:  healthy,
		Restarts: s.restartsInWindowLocked(),
	}
	if s.proc != nil {
		report.Ref = s.proc.Ref
		report.PID = s.proc.PID
		report.StartedAt = s.proc.StartedAt
		if alive && !s.proc.StartedAt.IsZero() {
			report.Uptime = s.now().Sub(s.proc.StartedAt).Round(time.Second).String()
		}
	}
	if s.lastErr != nil {
		report.LastError = s.lastErr.Error()
	}
	return report
}

func (s *Supervisor) startLocked(ctx context.Context, reason string) error {
	svc := s.service()
	l, err := s.launcherFor(svc)
	if err != nil {
		return err
	}

	s.setState(StateStarting)
	s.emit(EventTypeStarting, "starting service", reason, nil)
	s.logger.Info().Str("service", svc.Name).Str("launcher", svc.Launcher).Msg("starting service")

	if err := s.freeBindAddress(ctx, svc, l); err != nil {
		s.setState(StateStopped)
		s.setLastErr(err)
		return err
	}

	h, err := l.Start(ctx, launcher.NewStartSpec(svc))
	if err != nil {
		s.setState(StateStopped)
		wrapped := fmt.Errorf("%w: %v", ErrSpawn, err)
		s.setLastErr(wrapped)
		return wrapped
	}

	record := &Process{Ref: h.Ref(), PID: h.PID(), StartedAt: s.now()}
	if svc.PidFile != "" {
		if err := pidfile.Write(svc.PidFile, record.Ref); err != nil {
			s.logger.Warn().Err(err).Str("path", svc.PidFile).Msg("pidfile write failed")
		}
	}

	s.mu.Lock()
	s.handle = h
	s.proc = record
	s.state = StateStarting
	s.lastErr = nil
	s.mu.Unlock()

	s.emit(EventTypeStarted, "service started", reason, nil)
	s.logger.Info().Str("service", svc.Name).Str("ref", record.Ref).Int("pid", record.PID).Msg("service started")
	return nil
}

func (s *Supervisor) stopLocked(ctx context.Context, reason string) error {
	svc := s.service()
	h := s.currentHandle()
	if h == nil {
		h = s.attachRecorded(ctx, svc)
	}
	if h == nil || !h.Alive(ctx) {
		s.clearProcess(svc)
		return nil
	}

	grace := svc.StopTimeout.Duration
	stopCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(ctx, grace+stopSlack)
		defer cancel()
	}
	if err := h.Stop(stopCtx, grace); err != nil {
		s.logger.Error().Err(err).Str("service", svc.Name).Msg("stop failed")
		return err
	}

	s.clearProcess(svc)
	s.emit(EventTypeStopped, "service stopped", reason, nil)
	s.logger.Info().Str("service", svc.Name).Msg("service stopped")
	metrics.SetServiceHealthy(svc.Name, false)
	return nil
}

// freeBindAddress makes room for a new instance: stop whatever the pidfile
// says we started last time, then evict any other process still holding the
// bind address, then wait for the listener to disappear.
func (s *Supervisor) freeBindAddress(ctx context.Context, svc *config.Service, l launcher.Launcher) error {
	if svc.PidFile != "" {
		if ref, err := pidfile.Read(svc.PidFile); err == nil && ref != "" {
			if h, err := l.Attach(ctx, launcher.NewStartSpec(svc), ref); err == nil && h.Alive(ctx) {
				s.logger.Info().Str("service", svc.Name).Str("ref", ref).Msg("stopping recorded service")
				stopCtx, cancel := context.WithTimeout(ctx, svc.StopTimeout.Duration+stopSlack)
				_ = h.Stop(stopCtx, svc.StopTimeout.Duration)
				cancel()
			}
			_ = pidfile.Remove(svc.PidFile)
		}
	}

	addr := svc.BindAddress
	if !ports.Listening(addr) {
		return nil
	}

	if _, port, err := ports.Split(addr); err == nil {
		if pid, err := ports.Owner(port); err == nil && pid > 0 && pid != os.Getpid() {
			s.logger.Warn().Int("pid", pid).Str("addr", addr).Msg("killing process holding bind address")
			killCtx, cancel := context.WithTimeout(ctx, svc.StopTimeout.Duration+stopSlack)
			_ = proc.TerminateGroup(killCtx, pid, svc.StopTimeout.Duration)
			cancel()
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.portWait)
	defer cancel()
	if err := ports.WaitFree(waitCtx, addr); err != nil {
		return fmt.Errorf("%w: %s", ErrPortInUse, addr)
	}
	return nil
}

// superviseStart keeps trying to start the service. The first attempt is
// free; every retry consumes restart budget.
func (s *Supervisor) superviseStart(ctx context.Context, reason string, backoff *time.Duration) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		s.opMu.Lock()
		err := s.startLocked(ctx, reason)
		s.opMu.Unlock()
		if err == nil {
			return nil
		}
		s.emit(EventTypeCrashed, "start failed", ReasonStartFailure, err)
		s.logger.Error().Err(err).Str("service", s.serviceName()).Msg("start failed")

		if !s.allowRestart() {
			return s.giveUp(err)
		}
		attempt := s.recordRestart()
		metrics.IncrementServiceRestart(s.serviceName())
		s.emitAttempt(EventTypeRestarting, "retrying start", ReasonStartFailure, attempt, err)
		if err := s.sleepBackoff(ctx, backoff); err != nil {
			return nil
		}
	}
}

// restartSupervised performs one budgeted restart cycle and keeps retrying
// the start through the same budget if it fails.
func (s *Supervisor) restartSupervised(ctx context.Context, reason string, backoff *time.Duration) error {
	if ctx.Err() != nil {
		return nil
	}
	if reason == ReasonProcessExit {
		// The exit was observed without holding opMu, so an operator restart
		// may have been mid-flight. Re-check once it has drained.
		s.opMu.Lock()
		alive := s.processAlive(ctx)
		s.opMu.Unlock()
		if alive {
			return nil
		}
	}
	if !s.allowRestart() {
		return s.giveUp(fmt.Errorf("service %s restarted too often", s.serviceName()))
	}
	attempt := s.recordRestart()
	metrics.IncrementServiceRestart(s.serviceName())
	s.setState(StateRestarting)
	s.emitAttempt(EventTypeRestarting, "restarting service", reason, attempt, nil)
	s.logger.Warn().Str("service", s.serviceName()).Int("attempt", attempt).Str("reason", reason).Msg("restarting service")

	s.opMu.Lock()
	err := s.stopLocked(ctx, reason)
	s.opMu.Unlock()
	if err != nil {
		// The replacement start frees the bind address again, so a stuck
		// stop is not fatal here.
		s.logger.Warn().Err(err).Str("service", s.serviceName()).Msg("stop during restart failed")
	}

	if err := s.sleep(ctx, s.settleDelay()); err != nil {
		return nil
	}
	if err := s.sleepBackoff(ctx, backoff); err != nil {
		return nil
	}

	// The restart recorded above pays for the first start attempt; any
	// retries inside consume their own budget.
	if err := s.superviseStart(ctx, reason, backoff); err != nil {
		return err
	}
	_ = s.sleep(ctx, s.gracePeriod())
	return nil
}

func (s *Supervisor) giveUp(cause error) error {
	pol := s.restartPolicy()
	s.setState(StateFailed)
	err := fmt.Errorf("%w: %d restarts within %s: %v", ErrRestartBudget, pol.maxRestarts, pol.window, cause)
	s.setLastErr(err)
	s.emit(EventTypeFailed, "restart budget exhausted", ReasonBudgetExhausted, cause)
	s.logger.Error().Err(cause).Str("service", s.serviceName()).Int("maxRestarts", pol.maxRestarts).Dur("window", pol.window).Msg("restart budget exhausted")
	metrics.SetServiceHealthy(s.serviceName(), false)
	return err
}

func (s *Supervisor) allowRestart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pol := s.policy
	if pol.maxRestarts < 0 {
		return true
	}
	if pol.maxRestarts == 0 {
		return false
	}
	return s.pruneRestartsLocked() < pol.maxRestarts
}

func (s *Supervisor) recordRestart() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restarts = append(s.restarts, s.now())
	return s.pruneRestartsLocked()
}

func (s *Supervisor) restartsInWindowLocked() int {
	return s.pruneRestartsLocked()
}

func (s *Supervisor) pruneRestartsLocked() int {
	cutoff := s.now().Add(-s.policy.window)
	kept := s.restarts[:0]
	for _, t := range s.restarts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.restarts = kept
	return len(s.restarts)
}

func (s *Supervisor) sleepBackoff(ctx context.Context, base *time.Duration) error {
	pol := s.restartPolicy()
	delay := *base
	if delay <= 0 {
		delay = pol.min
	}
	if delay > pol.max {
		delay = pol.max
	}

	jittered := s.jitter(delay)
	if jittered > pol.max {
		jittered = pol.max
	}
	if jittered < 0 {
		jittered = 0
	}

	if err := s.sleep(ctx, jittered); err != nil {
		return err
	}

	next := float64(delay) * pol.factor
	if math.IsInf(next, 0) || next > float64(pol.max) {
		*base = pol.max
		return nil
	}
	n := time.Duration(next)
	if n < pol.min {
		n = pol.min
	}
	if n > pol.max {
		n = pol.max
	}
	*base = n
	return nil
}

// adoptRecorded attaches to a service a previous invocation left running, so
// status and supervision work across warden processes.
func (s *Supervisor) adoptRecorded(ctx context.Context) {
	if s.currentHandle() != nil {
		return
	}
	svc := s.service()
	if svc.PidFile == "" {
		return
	}
	ref, err := pidfile.Read(svc.PidFile)
	if err != nil || ref == "" {
		return
	}
	l, err := s.launcherFor(svc)
	if err != nil {
		return
	}
	h, err := l.Attach(ctx, launcher.NewStartSpec(svc), ref)
	if err != nil || !h.Alive(ctx) {
		return
	}

	s.mu.Lock()
	s.handle = h
	s.proc = &Process{Ref: h.Ref(), PID: h.PID()}
	if s.state == StateStopped {
		s.state = StateStarting
	}
	s.mu.Unlock()
	s.logger.Debug().Str("service", svc.Name).Str("ref", ref).Msg("adopted running service")
}

func (s *Supervisor) attachRecorded(ctx context.Context, svc *config.Service) launcher.Handle {
	if svc.PidFile == "" {
		return nil
	}
	ref, err := pidfile.Read(svc.PidFile)
	if err != nil || ref == "" {
		return nil
	}
	l, err := s.launcherFor(svc)
	if err != nil {
		return nil
	}
	h, err := l.Attach(ctx, launcher.NewStartSpec(svc), ref)
	if err != nil {
		return nil
	}
	return h
}

func (s *Supervisor) processAlive(ctx context.Context) bool {
	h := s.currentHandle()
	if h == nil {
		return false
	}
	return h.Alive(ctx)
}

func (s *Supervisor) clearProcess(svc *config.Service) {
	s.mu.Lock()
	s.handle = nil
	s.proc = nil
	if s.state != StateFailed {
		s.state = StateStopped
	}
	s.mu.Unlock()
	if svc.PidFile != "" {
		_ = pidfile.Remove(svc.PidFile)
	}
}

func (s *Supervisor) launcherFor(svc *config.Service) (launcher.Launcher, error) {
	l, ok := s.launchers[svc.Launcher]
	if !ok {
		return nil, fmt.Errorf("unknown launcher %q", svc.Launcher)
	}
	return l, nil
}

func (s *Supervisor) emit(t EventType, message, reason string, err error) {
	sendEvent(s.events, s.serviceName(), t, message, 0, reason, err)
}

func (s *Supervisor) emitAttempt(t EventType, message, reason string, attempt int, err error) {
	sendEvent(s.events, s.serviceName(), t, message, attempt, reason, err)
}

func (s *Supervisor) service() *config.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Service.Clone()
}

func (s *Supervisor) serviceName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Service.Name
}

func (s *Supervisor) currentHandle() launcher.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *Supervisor) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Supervisor) setLastErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

func (s *Supervisor) restartPolicy() restartPolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

func (s *Supervisor) healthInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Health.Interval.Duration
}

func (s *Supervisor) gracePeriod() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Health.GracePeriod.Duration
}

func (s *Supervisor) settleDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Restart.Settle.Duration
}

func (s *Supervisor) successThreshold() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Health.SuccessThreshold
}

func (s *Supervisor) failureThreshold() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Health.FailureThreshold
}

package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-connections/nat"
)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// Config mirrors the warden.yaml document structure.
type Config struct {
	Version string   `yaml:"version"`
	Service *Service `yaml:"service"`
	Health  *Health  `yaml:"health"`
	Restart *Restart `yaml:"restart"`
	API     *APISpec `yaml:"api"`
}

// Service describes the supervised service and how to launch it.
type Service struct {
	Name        string            `yaml:"name"`
	Launcher    string            `yaml:"launcher"`
	Command     []string          `yaml:"command"`
	Image       string            `yaml:"image"`
	Unit        string            `yaml:"unit"`
	Workdir     string            `yaml:"workdir"`
	Env         map[string]string `yaml:"env"`
	EnvFromFile string            `yaml:"envFromFile"`
	Ports       []string          `yaml:"ports"`
	BindAddress string            `yaml:"bindAddress"`
	LogFile     string            `yaml:"logFile"`
	PidFile     string            `yaml:"pidFile"`
	StopTimeout Duration          `yaml:"stopTimeout"`
}

// Health configures the readiness probe for the service.
type Health struct {
	GracePeriod      Duration       `yaml:"gracePeriod"`
	Interval         Duration       `yaml:"interval"`
	Timeout          Duration       `yaml:"timeout"`
	FailureThreshold int            `yaml:"failureThreshold"`
	SuccessThreshold int            `yaml:"successThreshold"`
	HTTP             *HTTPProbeSpec `yaml:"http"`
	TCP              *TCPProbeSpec  `yaml:"tcp"`
	Command          *CommandProbe  `yaml:"cmd"`
}

// HTTPProbeSpec defines an HTTP probe.
type HTTPProbeSpec struct {
	URL          string `yaml:"url"`
	ExpectStatus []int  `yaml:"expectStatus"`
}

// TCPProbeSpec defines a TCP probe.
type TCPProbeSpec struct {
	Address string `yaml:"address"`
}

// CommandProbe defines a command probe.
type CommandProbe struct {
	Command []string `yaml:"command"`
	Timeout Duration `yaml:"timeout"`
}

// Restart defines restart behaviour when the service goes unhealthy.
type Restart struct {
	MaxRestarts *int         `yaml:"maxRestarts"`
	Window      Duration     `yaml:"window"`
	Backoff     *BackoffSpec `yaml:"backoff"`
	Settle      Duration     `yaml:"settle"`
}

// BackoffSpec describes exponential backoff configuration.
type BackoffSpec struct {
	Min    Duration `yaml:"min"`
	Max    Duration `yaml:"max"`
	Factor float64  `yaml:"factor"`
}

// APISpec configures the optional local status API.
type APISpec struct {
	Addr string `yaml:"addr"`
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := &Config{Version: c.Version}
	cp.Service = c.Service.Clone()
	cp.Health = c.Health.Clone()
	cp.Restart = c.Restart.Clone()
	cp.API = c.API.Clone()
	return cp
}

// Clone creates a deep copy of the service definition.
func (s *Service) Clone() *Service {
	if s == nil {
		return nil
	}
	cp := *s
	if len(s.Command) > 0 {
		cp.Command = append([]string(nil), s.Command...)
	}
	if len(s.Ports) > 0 {
		cp.Ports = append([]string(nil), s.Ports...)
	}
	if len(s.Env) > 0 {
		cp.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			cp.Env[k] = v
		}
	}
	return &cp
}

// Clone creates a deep copy of the health configuration.
func (h *Health) Clone() *Health {
	if h == nil {
		return nil
	}
	cp := *h
	if h.HTTP != nil {
		httpCopy := *h.HTTP
		if len(h.HTTP.ExpectStatus) > 0 {
			httpCopy.ExpectStatus = append([]int(nil), h.HTTP.ExpectStatus...)
		}
		cp.HTTP = &httpCopy
	}
	if h.TCP != nil {
		tcpCopy := *h.TCP
		cp.TCP = &tcpCopy
	}
	if h.Command != nil {
		cmdCopy := *h.Command
		if len(h.Command.Command) > 0 {
			cmdCopy.Command = append([]string(nil), h.Command.Command...)
		}
		cp.Command = &cmdCopy
	}
	return &cp
}

// Clone creates a deep copy of the restart configuration.
func (r *Restart) Clone() *Restart {
	if r == nil {
		return nil
	}
	cp := *r
	if r.MaxRestarts != nil {
		v := *r.MaxRestarts
		cp.MaxRestarts = &v
	}
	cp.Backoff = r.Backoff.Clone()
	return &cp
}

// Clone creates a deep copy of the backoff configuration.
func (b *BackoffSpec) Clone() *BackoffSpec {
	if b == nil {
		return nil
	}
	cp := *b
	return &cp
}

// Clone creates a deep copy of the API configuration.
func (a *APISpec) Clone() *APISpec {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

// MaxRestartCount resolves the configured restart cap. Negative values mean
// unlimited, zero means never restart.
func (r *Restart) MaxRestartCount() int {
	if r == nil || r.MaxRestarts == nil {
		return DefaultMaxRestarts
	}
	return *r.MaxRestarts
}

// Defaults applied by ApplyDefaults when the document omits a value.
const (
	DefaultMaxRestarts      = 5
	defaultWindow           = 10 * time.Minute
	defaultSettle           = 2 * time.Second
	defaultInterval         = 5 * time.Second
	defaultTimeout          = 2 * time.Second
	defaultFailureThreshold = 3
	defaultSuccessThreshold = 1
	defaultStopTimeout      = 10 * time.Second
	defaultBackoffMin       = time.Second
	defaultBackoffMax       = 30 * time.Second
	defaultBackoffFactor    = 2.0
)

// ApplyDefaults fills unset fields with supervisor defaults.
func (c *Config) ApplyDefaults() error {
	if c.Service == nil {
		return fmt.Errorf("%s: is required", fieldPath("service"))
	}
	svc := c.Service
	svc.Launcher = strings.TrimSpace(svc.Launcher)
	if svc.Launcher == "" {
		svc.Launcher = "exec"
	} else {
		svc.Launcher = strings.ToLower(svc.Launcher)
	}
	if !svc.StopTimeout.IsSet() {
		svc.StopTimeout.Duration = defaultStopTimeout
	}

	if c.Health != nil {
		h := c.Health
		if h.Interval.Duration == 0 {
			h.Interval.Duration = defaultInterval
		}
		if h.Timeout.Duration == 0 {
			h.Timeout.Duration = defaultTimeout
		}
		if h.FailureThreshold == 0 {
			h.FailureThreshold = defaultFailureThreshold
		}
		if h.SuccessThreshold == 0 {
			h.SuccessThreshold = defaultSuccessThreshold
		}
		if h.Command != nil && h.Command.Timeout.Duration == 0 {
			h.Command.Timeout = h.Timeout
		}
	}

	if c.Restart == nil {
		c.Restart = &Restart{}
	}
	r := c.Restart
	if r.Window.Duration == 0 {
		r.Window.Duration = defaultWindow
	}
	if !r.Settle.IsSet() {
		r.Settle.Duration = defaultSettle
	}
	if r.Backoff == nil {
		r.Backoff = &BackoffSpec{}
	}
	if r.Backoff.Min.Duration == 0 {
		r.Backoff.Min.Duration = defaultBackoffMin
	}
	if r.Backoff.Max.Duration == 0 {
		r.Backoff.Max.Duration = defaultBackoffMax
	}
	if r.Backoff.Factor == 0 {
		r.Backoff.Factor = defaultBackoffFactor
	}
	return nil
}

// Validate enforces schema invariants.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("%s: is required", fieldPath("version"))
	}
	if c.Service == nil {
		return fmt.Errorf("%s: is required", fieldPath("service"))
	}
	svc := c.Service
	if strings.TrimSpace(svc.Name) == "" {
		return fmt.Errorf("%s: is required", serviceField("name"))
	}
	switch svc.Launcher {
	case "exec", "docker", "systemd":
	default:
		return fmt.Errorf("%s: unsupported launcher %q (supported values: exec, docker, systemd)", serviceField("launcher"), svc.Launcher)
	}
	if svc.Launcher == "exec" && len(svc.Command) == 0 {
		return fmt.Errorf("%s: must contain at least one entry", serviceField("command"))
	}
	if svc.Launcher == "docker" && strings.TrimSpace(svc.Image) == "" {
		return fmt.Errorf("%s: is required", serviceField("image"))
	}
	if svc.Launcher == "systemd" && strings.TrimSpace(svc.Unit) == "" {
		return fmt.Errorf("%s: is required", serviceField("unit"))
	}
	if strings.TrimSpace(svc.BindAddress) == "" {
		return fmt.Errorf("%s: is required", serviceField("bindAddress"))
	}
	if err := validateHostPort(svc.BindAddress); err != nil {
		return fmt.Errorf("%s: %w", serviceField("bindAddress"), err)
	}
	if svc.StopTimeout.Duration < 0 {
		return fmt.Errorf("%s: must be non-negative", serviceField("stopTimeout"))
	}
	for i, port := range svc.Ports {
		if err := validatePort(port); err != nil {
			return fmt.Errorf("%s: %w", serviceField(fmt.Sprintf("ports[%d]", i)), err)
		}
	}

	if c.Health == nil {
		return fmt.Errorf("%s: is required", fieldPath("health"))
	}
	if err := validateHealth(c.Health); err != nil {
		return err
	}

	r := c.Restart
	if r.MaxRestarts != nil && *r.MaxRestarts < -1 {
		return fmt.Errorf("%s: must be -1 (unlimited), 0 (never) or positive", restartField("maxRestarts"))
	}
	if r.Window.Duration <= 0 {
		return fmt.Errorf("%s: must be positive", restartField("window"))
	}
	if r.Settle.Duration < 0 {
		return fmt.Errorf("%s: must be non-negative", restartField("settle"))
	}
	if r.Backoff.Min.Duration <= 0 {
		return fmt.Errorf("%s: must be positive", restartField("backoff", "min"))
	}
	if r.Backoff.Max.Duration < r.Backoff.Min.Duration {
		return fmt.Errorf("%s: must be greater than or equal to backoff.min", restartField("backoff", "max"))
	}
	if r.Backoff.Factor < 1 {
		return fmt.Errorf("%s: must be at least 1", restartField("backoff", "factor"))
	}

	if c.API != nil && strings.TrimSpace(c.API.Addr) != "" {
		if err := validateHostPort(c.API.Addr); err != nil {
			return fmt.Errorf("%s: %w", fieldPath("api", "addr"), err)
		}
	}
	return nil
}

func validateHealth(h *Health) error {
	probes := 0
	if h.HTTP != nil {
		probes++
		if h.HTTP.URL == "" {
			return fmt.Errorf("%s: is required", healthField("http", "url"))
		}
		for _, code := range h.HTTP.ExpectStatus {
			if code < 100 || code > 599 {
				return fmt.Errorf("%s: invalid status code %d", healthField("http", "expectStatus"), code)
			}
		}
	}
	if h.TCP != nil {
		probes++
		if h.TCP.Address == "" {
			return fmt.Errorf("%s: is required", healthField("tcp", "address"))
		}
		if err := validateHostPort(h.TCP.Address); err != nil {
			return fmt.Errorf("%s: %w", healthField("tcp", "address"), err)
		}
	}
	if h.Command != nil {
		probes++
		if len(h.Command.Command) == 0 {
			return fmt.Errorf("%s: must contain at least one entry", healthField("cmd", "command"))
		}
	}
	if probes == 0 {
		return fmt.Errorf("%s: probe configuration is required", fieldPath("health"))
	}
	if probes > 1 {
		return fmt.Errorf("%s: configure exactly one of http, tcp or cmd", fieldPath("health"))
	}
	if h.GracePeriod.Duration < 0 {
		return fmt.Errorf("%s: must be non-negative", healthField("gracePeriod"))
	}
	if h.Interval.Duration <= 0 {
		return fmt.Errorf("%s: must be positive", healthField("interval"))
	}
	if h.Timeout.Duration <= 0 {
		return fmt.Errorf("%s: must be positive", healthField("timeout"))
	}
	if h.FailureThreshold < 1 {
		return fmt.Errorf("%s: must be at least 1", healthField("failureThreshold"))
	}
	if h.SuccessThreshold < 1 {
		return fmt.Errorf("%s: must be at least 1", healthField("successThreshold"))
	}
	return nil
}

func validateHostPort(addr string) error {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid address %q: port must be numeric", addr)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid address %q: port must be in range 1-65535", addr)
	}
	return nil
}

func validatePort(spec string) error {
	mappings, err := nat.ParsePortSpec(spec)
	if err != nil {
		return fmt.Errorf("invalid port mapping %q: %w", spec, err)
	}
	if len(mappings) == 0 {
		return fmt.Errorf("invalid port mapping %q: no port definitions found", spec)
	}
	for _, mapping := range mappings {
		hostPort := strings.TrimSpace(mapping.Binding.HostPort)
		if hostPort == "" {
			continue
		}
		start, end, err := nat.ParsePortRange(hostPort)
		if err != nil {
			return fmt.Errorf("invalid port mapping %q: invalid host port %q", spec, hostPort)
		}
		if start == 0 || end == 0 {
			return fmt.Errorf("invalid port mapping %q: host port must be in range 1-65535", spec)
		}
	}
	return nil
}

func fieldPath(parts ...string) string {
	return strings.Join(parts, ".")
}

func serviceField(parts ...string) string {
	return fieldPath(append([]string{"service"}, parts...)...)
}

func healthField(parts ...string) string {
	return fieldPath(append([]string{"health"}, parts...)...)
}

func restartField(parts ...string) string {
	return fieldPath(append([]string{"restart"}, parts...)...)
}

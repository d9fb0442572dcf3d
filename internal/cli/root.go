package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/stackwatch/warden/internal/cliutil"
	"github.com/stackwatch/warden/internal/config"
	"github.com/stackwatch/warden/internal/launcher"
	dockerlauncher "github.com/stackwatch/warden/internal/launcher/docker"
	execlauncher "github.com/stackwatch/warden/internal/launcher/exec"
	systemdlauncher "github.com/stackwatch/warden/internal/launcher/systemd"
	"github.com/stackwatch/warden/internal/supervisor"
)

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *context) {
	var (
		configFile string
		logLevel   string
		logFormat  string
	)

	ctx := &context{configFile: &configFile}

	root := &cobra.Command{
		Use:   "warden",
		Short: "Health-checked process supervisor",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := applyEnvOverrides(cmd.Root().PersistentFlags()); err != nil {
				return err
			}
			logger, err := cliutil.NewLogger(logLevel, logFormat)
			if err != nil {
				return err
			}
			ctx.setLogger(logger)
			return nil
		},
	}

	root.PersistentFlags().
		StringVarP(&configFile, "file", "f", "warden.yaml", "Path to service definition")
	root.PersistentFlags().
		StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	root.PersistentFlags().
		StringVar(&logFormat, "log-format", "auto", "Log format (auto, console, json)")

	root.AddCommand(newStartCmd(ctx))
	root.AddCommand(newStopCmd(ctx))
	root.AddCommand(newStatusCmd(ctx))
	root.AddCommand(newRestartCmd(ctx))
	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newLogsCmd(ctx))
	root.AddCommand(newDashCmd(ctx))
	root.AddCommand(newConfigCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// applyEnvOverrides fills unset persistent flags from WARDEN_* environment
// variables so unit files and CI can configure the tool without argv edits.
// Flags given explicitly on the command line win over the environment.
func applyEnvOverrides(flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed {
			return
		}
		key := "WARDEN_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		value, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		if setErr := flags.Set(f.Name, value); setErr != nil {
			err = fmt.Errorf("apply %s: %w", key, setErr)
		}
	})
	return err
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		var exitErr exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// exitCodeError carries a process exit code through cobra without printing
// an error message. Commands return it after writing their own output.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

type context struct {
	configFile *string

	mu        sync.Mutex
	logger    *zerolog.Logger
	launchers launcher.Registry
}

func (c *context) setLogger(logger zerolog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = &logger
}

func (c *context) log() zerolog.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logger == nil {
		return zerolog.Nop()
	}
	return *c.logger
}

func (c *context) loadConfig() (*config.Config, error) {
	return config.Load(*c.configFile)
}

func (c *context) launcherRegistry() launcher.Registry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.launchers == nil {
		c.launchers = launcher.Registry{
			"exec":    execlauncher.New(),
			"docker":  dockerlauncher.New(),
			"systemd": systemdlauncher.New(),
		}
	}
	return c.launchers
}

// newSupervisor loads the service definition and builds a supervisor for it.
// One shot commands construct a fresh supervisor per invocation and rely on
// the pidfile to find processes started by earlier invocations.
func (c *context) newSupervisor(events chan supervisor.Event, extra ...supervisor.Option) (*supervisor.Supervisor, *config.Config, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	opts := []supervisor.Option{supervisor.WithLogger(c.log())}
	if events != nil {
		opts = append(opts, supervisor.WithEvents(events))
	}
	opts = append(opts, extra...)
	sup, err := supervisor.New(cfg, c.launcherRegistry(), opts...)
	if err != nil {
		return nil, nil, err
	}
	return sup, cfg, nil
}

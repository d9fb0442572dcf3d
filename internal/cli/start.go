package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stackwatch/warden/internal/supervisor"
)

func newStartCmd(ctx *context) *cobra.Command {
	var (
		noWait       bool
		waitAttempts int
		waitInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the service and wait for it to become healthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, cfg, err := ctx.newSupervisor(nil, waitOptions(waitInterval)...)
			if err != nil {
				return err
			}
			if err := sup.Start(cmd.Context()); err != nil {
				return err
			}
			report := sup.Status(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Started %s (%s via %s)\n", cfg.Service.Name, report.Ref, cfg.Service.Launcher)

			if noWait {
				return nil
			}
			if err := sup.WaitHealthy(cmd.Context(), waitAttempts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Service %s is healthy.\n", cfg.Service.Name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Return as soon as the process is spawned instead of waiting for health")
	cmd.Flags().IntVar(&waitAttempts, "wait-attempts", 0, "Maximum number of health probes before giving up (0 uses the default)")
	cmd.Flags().DurationVar(&waitInterval, "wait-interval", 0, "Pause between health probes while waiting (0 uses the health interval)")
	return cmd
}

// waitOptions maps the wait flags onto supervisor options.
func waitOptions(interval time.Duration) []supervisor.Option {
	if interval <= 0 {
		return nil
	}
	return []supervisor.Option{supervisor.WithWaitInterval(interval)}
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRestartCmd(ctx *context) *cobra.Command {
	var (
		noWait       bool
		waitAttempts int
		waitInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Stop the service, wait for the port to settle, and start it again",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, cfg, err := ctx.newSupervisor(nil, waitOptions(waitInterval)...)
			if err != nil {
				return err
			}
			if err := sup.Restart(cmd.Context()); err != nil {
				return err
			}
			report := sup.Status(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Restarted %s (%s)\n", cfg.Service.Name, report.Ref)

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

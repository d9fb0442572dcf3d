package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stackwatch/warden/internal/supervisor"
)

func newStopCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the service and clear its recorded process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, cfg, err := ctx.newSupervisor(nil)
			if err != nil {
				return err
			}

			wasRunning := sup.Status(cmd.Context()).State != supervisor.StateStopped

			// Stop always exits zero so shutdown scripts can run it
			// unconditionally. Failures are reported but not fatal.
			if err := sup.Stop(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "stop %s: %v\n", cfg.Service.Name, err)
				return nil
			}
			if wasRunning {
				fmt.Fprintf(cmd.OutOrStdout(), "Stopped %s.\n", cfg.Service.Name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Service %s is not running.\n", cfg.Service.Name)
			}
			return nil
		},
	}
	return cmd
}

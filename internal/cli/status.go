package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatusCmd(ctx *context) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Display the service state and health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, _, err := ctx.newSupervisor(nil)
			if err != nil {
				return err
			}
			report := sup.Status(cmd.Context())

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SERVICE\tSTATE\tHEALTHY\tPID\tREF\tUPTIME\tRESTARTS\tMESSAGE")
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					report.Service,
					report.State,
					formatHealthy(report.Healthy),
					formatPID(report.PID),
					formatValue(report.Ref),
					formatValue(report.Uptime),
					report.Restarts,
					formatValue(report.LastError))
				w.Flush()
			}

			// Exit code mirrors health so scripts can poll without parsing.
			if !report.Healthy {
				return exitCodeError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the status report as JSON")
	return cmd
}

func formatHealthy(healthy bool) string {
	if healthy {
		return "Yes"
	}
	return "No"
}

func formatPID(pid int) string {
	if pid <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d", pid)
}

func formatValue(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

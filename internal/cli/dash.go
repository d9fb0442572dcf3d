package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/stackwatch/warden/internal/supervisor"
	"github.com/stackwatch/warden/internal/tui"
)

func newDashCmd(ctx *context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dash",
		Short: "Supervise the service with an interactive dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !interactiveTerminal(cmd) {
				return fmt.Errorf("dash requires an interactive terminal")
			}

			events := make(chan supervisor.Event, 256)
			sup, cfg, err := ctx.newSupervisor(events)
			if err != nil {
				return err
			}

			ui := tui.New(sup.Status, tui.WithRestart(sup.Restart))

			runCtx, cancel := stdcontext.WithCancel(cmd.Context())
			defer cancel()

			g, gctx := errgroup.WithContext(runCtx)

			g.Go(func() error {
				return sup.Run(gctx)
			})

			// Quitting the dashboard stops supervision too. Cancelling here
			// also lets the event forwarder close the UI sink, which the UI
			// waits for during teardown.
			g.Go(func() error {
				select {
				case <-ui.Done():
				case <-gctx.Done():
				}
				cancel()
				return nil
			})

			g.Go(func() error {
				defer ui.CloseEvents()
				sink := ui.EventSink()
				for {
					select {
					case <-gctx.Done():
						return nil
					case evt := <-events:
						select {
						case sink <- evt:
						default:
							// UI saturated; dropping is better than stalling
							// the supervisor.
						}
					}
				}
			})

			g.Go(func() error {
				return ui.Run(gctx)
			})

			if err := g.Wait(); err != nil && !errors.Is(err, stdcontext.Canceled) {
				return err
			}

			statusCtx, statusCancel := stdcontext.WithTimeout(stdcontext.WithoutCancel(cmd.Context()), 2*time.Second)
			defer statusCancel()
			report := sup.Status(statusCtx)
			if report.Ref != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Supervision stopped; %s left running (%s).\n", cfg.Service.Name, report.Ref)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Supervision stopped.")
			}
			return nil
		},
	}
	return cmd
}

func interactiveTerminal(cmd *cobra.Command) bool {
	out, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(out.Fd()))
}

package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/stackwatch/warden/internal/api/http"
	"github.com/stackwatch/warden/internal/config"
	"github.com/stackwatch/warden/internal/metrics"
)

var (
	newAPIServer     = apihttp.NewServer
	newConfigWatcher = config.NewWatcher
)

func newRunCmd(ctx *context) *cobra.Command {
	var (
		apiAddr       string
		noWatch       bool
		reloadRestart bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Supervise the service in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, cfg, err := ctx.newSupervisor(nil)
			if err != nil {
				return err
			}
			logger := ctx.log()

			g, runCtx := errgroup.WithContext(cmd.Context())

			g.Go(func() error {
				return sup.Run(runCtx)
			})

			addr := strings.TrimSpace(apiAddr)
			if addr == "" && cfg.API != nil {
				addr = strings.TrimSpace(cfg.API.Addr)
			}
			if addr != "" {
				server, err := newAPIServer(apihttp.Config{
					Addr:       addr,
					Controller: NewControlAPI(sup),
					Registry:   metrics.Registry(),
				})
				if err != nil {
					return err
				}
				g.Go(func() error {
					return server.Run(runCtx)
				})
				fmt.Fprintf(cmd.OutOrStdout(), "Control API listening on %s\n", server.Addr())
			}

			if !noWatch {
				path := *ctx.configFile
				watcher := newConfigWatcher(path, logger, func(next *config.Config) {
					if err := sup.UpdateSpec(next); err != nil {
						logger.Warn().Err(err).Str("path", path).Msg("config change rejected")
						return
					}
					logger.Info().Str("path", path).Msg("config reloaded")
					if !reloadRestart {
						return
					}
					// Restart off the watcher goroutine; the stop grace can
					// take a while and reload bursts are debounced anyway.
					go func() {
						if err := sup.Restart(runCtx); err != nil {
							logger.Error().Err(err).Str("service", cfg.Service.Name).Msg("restart after reload failed")
							return
						}
						logger.Info().Str("service", cfg.Service.Name).Msg("service restarted on new config")
					}()
				})
				g.Go(func() error {
					return watcher.Run(runCtx)
				})
			}

			if err := g.Wait(); err != nil &&
				!errors.Is(err, stdcontext.Canceled) &&
				!errors.Is(err, http.ErrServerClosed) {
				return err
			}

			// The supervised process is deliberately left running when the
			// loop is cancelled; report what remains behind.
			statusCtx, cancel := stdcontext.WithTimeout(stdcontext.WithoutCancel(cmd.Context()), 2*time.Second)
			defer cancel()
			report := sup.Status(statusCtx)
			if report.Ref != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Supervision stopped; %s left running (%s).\n", cfg.Service.Name, report.Ref)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Supervision stopped.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&apiAddr, "api", "", "Address for the HTTP control API (overrides the config file)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Disable config reload on file change")
	cmd.Flags().BoolVar(&reloadRestart, "reload-restart", false, "Restart the service as soon as a config change is applied")
	return cmd
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stackwatch/warden/internal/cliutil"
	"github.com/stackwatch/warden/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with service definition files",
	}
	cmd.AddCommand(newConfigLintCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigLintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Validate a service definition file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(cmd)
			if _, err := config.Load(path); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid.\n", path)
			return nil
		},
	}
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with defaults applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath(cmd))
			if err != nil {
				return err
			}
			if cfg.Service != nil {
				cfg.Service.Env = cliutil.RedactEnv(cfg.Service.Env)
			}
			encoded, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(encoded)
			return err
		},
	}
	return cmd
}

func configPath(cmd *cobra.Command) string {
	path := "warden.yaml"
	if flag := cmd.Flag("file"); flag != nil {
		if value := flag.Value.String(); value != "" {
			path = value
		}
	} else if inherited := cmd.InheritedFlags().Lookup("file"); inherited != nil {
		if value := inherited.Value.String(); value != "" {
			path = value
		}
	}
	return path
}

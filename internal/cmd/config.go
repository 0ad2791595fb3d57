package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sahilvermadev/mapx/internal/config"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long: `Inspect the effective configuration.

Values come from built-in defaults, ~/.mapx/config.yaml (or --config), a
.env file in the working directory and MAPX_ environment variables, later
sources winning. Secrets are masked.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	var output string
	view := &cobra.Command{
		Use:   "view",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadSettings(cmd, opts)
			if err != nil {
				return err
			}
			return writeStructured(cmd.OutOrStdout(), output, cfg.Redacted())
		},
	}
	view.Flags().StringVarP(&output, "output", "o", outputYAML, "output format (yaml, json)")

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := opts.configPath
			if p == "" {
				p = config.DefaultPath()
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	}

	configCmd.AddCommand(view, path)
	return configCmd
}

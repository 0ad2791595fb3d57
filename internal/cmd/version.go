package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sahilvermadev/mapx/internal/version"
)

func newVersionCmd() *cobra.Command {
	var verbose, asJSON bool
	c := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print version information including version number, git commit,
build date, Go version, and platform.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.GetInfo()
			out := cmd.OutOrStdout()

			switch {
			case asJSON:
				return writeStructured(out, outputJSON, info)
			case verbose:
				fmt.Fprintln(out, info.String())
			default:
				fmt.Fprintf(out, "mapx %s\n", info.Version)
			}
			return nil
		},
	}
	c.Flags().BoolVarP(&verbose, "verbose", "v", false, "show detailed version information")
	c.Flags().BoolVar(&asJSON, "json", false, "output version information as JSON")
	return c
}

// Package cmd is the mapx command line.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string

	// finish ends the command span and flushes traces. Set by loadSettings.
	finish func(error)
}

func (o *rootOptions) done(err error) {
	if o.finish != nil {
		o.finish(err)
		o.finish = nil
	}
}

func newRootCmd() *cobra.Command {
	root, _ := newRoot()
	return root
}

func newRoot() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "mapx",
		Short: "Session client for the mapx backend",
		Long: `mapx keeps a signed-in session with the mapx backend.

It stores the access and refresh tokens issued by the OAuth callback,
renews the access token before it expires and sends it with every API
request. A request the backend still rejects after one renewal ends the
session.

Configuration is read from ~/.mapx/config.yaml, a .env file in the working
directory and MAPX_ environment variables such as MAPX_API_BASE_URL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is $HOME/.mapx/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override log.format (text, json)")

	root.AddCommand(
		newAuthCmd(opts),
		newAPICmd(opts),
		newConfigCmd(opts),
		newDoctorCmd(opts),
		newServeDevCmd(opts),
		newVersionCmd(),
	)
	return root, opts
}

// Execute runs the root command.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	root, opts := newRoot()
	err := root.ExecuteContext(ctx)
	opts.done(err)
	return err
}

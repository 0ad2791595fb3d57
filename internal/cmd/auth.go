package cmd

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/sahilvermadev/mapx/internal/authstate"
	"github.com/sahilvermadev/mapx/internal/errors"
	"github.com/sahilvermadev/mapx/internal/token"
)

func newAuthCmd(opts *rootOptions) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the signed-in session",
		Long: `Manage the session with the mapx backend.

Subcommands:
  callback  Complete sign-in from an OAuth callback URL
  login     Store an access and refresh token pair directly
  status    Show who is signed in
  token     Print a valid access token, renewing it if needed
  username  Choose the username of a new account
  logout    Sign out of this device or of every device

Examples:
  mapx auth callback 'http://localhost:5173/auth/callback?token=...&refreshToken=...'
  mapx auth status --output json
  mapx auth logout --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	authCmd.AddCommand(
		newAuthCallbackCmd(opts),
		newAuthLoginCmd(opts),
		newAuthStatusCmd(opts),
		newAuthTokenCmd(opts),
		newAuthUsernameCmd(opts),
		newAuthLogoutCmd(opts),
	)
	return authCmd
}

func notSignedIn() error {
	return errors.New(errors.ErrCodeNoRefreshToken, "not signed in").
		WithSuggestion("Run 'mapx auth callback <url>' with the URL the sign-in page redirected to")
}

// printState writes the machine state in the requested format.
func printState(cmd *cobra.Command, a *app, format string) error {
	st := a.machine.State()
	if format != outputText {
		return writeStructured(cmd.OutOrStdout(), format, st)
	}
	var expires time.Time
	if st.IsAuthenticated {
		expires, _ = token.ExpiresAt(a.session.Snapshot(cmd.Context()).Access)
	}
	fmt.Fprint(cmd.OutOrStdout(), renderState(st, expires, time.Now()))
	return nil
}

func newAuthCallbackCmd(opts *rootOptions) *cobra.Command {
	var output string
	c := &cobra.Command{
		Use:   "callback <url>",
		Short: "Complete sign-in from an OAuth callback URL",
		Long: `Complete sign-in from the URL the backend redirected to after OAuth.

The token and refreshToken query parameters are stored and removed from
the URL. The command then reports the signed-in user and whether a
username still has to be chosen.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid callback URL: %w", err)
			}
			if entry.Query().Get(authstate.ParamToken) == "" {
				return fmt.Errorf("callback URL has no %q parameter", authstate.ParamToken)
			}

			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			a.machine.Bootstrap(cmd.Context(), entry)
			a.machine.Wait()

			if !a.machine.State().IsAuthenticated {
				return errors.NewTokenDecodeError("the callback token does not identify a user")
			}
			return printState(cmd, a, output)
		},
	}
	c.Flags().StringVarP(&output, "output", "o", outputText, "output format (text, json, yaml)")
	return c
}

func newAuthLoginCmd(opts *rootOptions) *cobra.Command {
	var access, refresh, output string
	c := &cobra.Command{
		Use:   "login",
		Short: "Store a token pair directly",
		Long: `Store an access token and, optionally, a refresh token without going
through the OAuth callback. Useful for scripts and CI.

Examples:
  mapx auth login --access "$ACCESS" --refresh "$REFRESH"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token.IdentityOf(access) == nil {
				return errors.NewTokenDecodeError("--access does not identify a user")
			}

			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.session.Establish(cmd.Context(), access, refresh); err != nil {
				return err
			}
			a.machine.Bootstrap(cmd.Context(), nil)
			a.machine.Wait()
			return printState(cmd, a, output)
		},
	}
	c.Flags().StringVar(&access, "access", "", "access token (required)")
	c.Flags().StringVar(&refresh, "refresh", "", "refresh token")
	c.Flags().StringVarP(&output, "output", "o", outputText, "output format (text, json, yaml)")
	_ = c.MarkFlagRequired("access")
	return c
}

func newAuthStatusCmd(opts *rootOptions) *cobra.Command {
	var output string
	c := &cobra.Command{
		Use:   "status",
		Short: "Show who is signed in",
		Long: `Show the current session. An access token close to expiry is renewed
first; a session that cannot be renewed is reported as signed out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			a.machine.Bootstrap(cmd.Context(), nil)
			a.machine.Wait()
			return printState(cmd, a, output)
		},
	}
	c.Flags().StringVarP(&output, "output", "o", outputText, "output format (text, json, yaml)")
	return c
}

func newAuthTokenCmd(opts *rootOptions) *cobra.Command {
	var force bool
	c := &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token",
		Long: `Print an access token fit to send, renewing it when it expires within
session.expiry_buffer. With --refresh a new token is always requested.

Examples:
  curl -H "Authorization: Bearer $(mapx auth token)" http://localhost:3001/api/me`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			var access string
			if force {
				if access, err = a.session.RefreshAccessToken(cmd.Context()); err != nil {
					return err
				}
			} else if access = a.session.TokenForRequest(cmd.Context()); access == "" {
				return notSignedIn()
			}
			fmt.Fprintln(cmd.OutOrStdout(), access)
			return nil
		},
	}
	c.Flags().BoolVar(&force, "refresh", false, "always request a new access token")
	return c
}

func newAuthUsernameCmd(opts *rootOptions) *cobra.Command {
	var output string
	c := &cobra.Command{
		Use:   "username <name>",
		Short: "Choose the username of a new account",
		Long: `Claim a username for the signed-in user. Accounts created by OAuth
sign-in have none until one is chosen; 'mapx auth status' reports
"username needed" until then.

Examples:
  mapx auth username grace`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			a.machine.Bootstrap(ctx, nil)
			a.machine.Wait()
			if !a.machine.State().IsAuthenticated {
				return notSignedIn()
			}

			if _, err := a.usernames.SetUsername(ctx, args[0]); err != nil {
				return err
			}
			a.machine.CloseUsernameModal()
			a.machine.RecheckUsernameStatus(ctx)
			return printState(cmd, a, output)
		},
	}
	c.Flags().StringVarP(&output, "output", "o", outputText, "output format (text, json, yaml)")
	return c
}

func newAuthLogoutCmd(opts *rootOptions) *cobra.Command {
	var all bool
	c := &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		Long: `Remove the stored tokens and revoke the session on the backend.

Local tokens are removed even when the backend cannot be reached. With
--all every session of the user is revoked, not only this one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			pair := a.session.Snapshot(cmd.Context())
			if pair.Empty() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}

			if all {
				a.machine.LogoutAllDevices(cmd.Context())
			} else {
				a.machine.Logout(cmd.Context())
			}
			a.machine.Wait()

			who := "Signed out"
			if id := token.IdentityOf(pair.Access); id != nil && id.Email != "" {
				who += " " + id.Email
			}
			if all {
				who += " on all devices"
			}
			fmt.Fprintln(cmd.OutOrStdout(), who+".")
			return nil
		},
	}
	c.Flags().BoolVar(&all, "all", false, "revoke every session of the user")
	return c
}

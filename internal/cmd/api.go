package cmd

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sahilvermadev/mapx/internal/errors"
)

func newAPICmd(opts *rootOptions) *cobra.Command {
	apiCmd := &cobra.Command{
		Use:   "api",
		Short: "Call the backend with the session credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	apiCmd.AddCommand(&cobra.Command{
		Use:   "get <path>",
		Short: "Send an authenticated GET request",
		Long: `Send a GET request to api.base_url + path with the current access token.

A rejected token is renewed and the request retried once. If the backend
still refuses it the session ends and the command fails.

Examples:
  mapx api get /api/me
  mapx api get /api/username/status`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			path := args[0]
			if !strings.HasPrefix(path, "/") {
				path = "/" + path
			}
			target := strings.TrimRight(a.cfg.API.BaseURL, "/") + path

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, target, nil)
			if err != nil {
				return fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("Accept", "application/json")

			resp, err := a.client.Do(req)
			if err != nil {
				return errors.Wrap(errors.ErrCodeAPITransport, "GET "+path+" failed", err)
			}
			defer resp.Body.Close()

			if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil {
				return fmt.Errorf("failed to read response: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout())

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				e := errors.New(errors.ErrCodeAPIStatus, fmt.Sprintf("request failed with status %d", resp.StatusCode))
				if a.session.Snapshot(cmd.Context()).Empty() {
					e.WithSuggestion("The session has ended; run 'mapx auth callback <url>' to sign in again")
				}
				return e
			}
			return nil
		},
	})
	return apiCmd
}

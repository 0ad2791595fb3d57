package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sahilvermadev/mapx/internal/health"
)

func newDoctorCmd(opts *rootOptions) *cobra.Command {
	var output string
	c := &cobra.Command{
		Use:   "doctor",
		Short: "Check the token store, backend and stored session",
		Long: `Run diagnostics for the session client.

Checks:
  token-store  the configured store can be read
  backend      api.base_url answers HTTP
  session      a session is stored and its access token is usable

The stored tokens are only inspected; nothing is refreshed.

Examples:
  mapx doctor
  mapx doctor --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			m := health.NewManager(
				&health.StoreChecker{Store: a.store, Backend: a.cfg.Store.Backend},
				&health.BackendChecker{BaseURL: a.cfg.API.BaseURL},
				&health.SessionChecker{Session: a.session, Buffer: a.cfg.Session.ExpiryBuffer},
			)
			report := m.Check(cmd.Context())

			if output != outputText {
				if err := writeStructured(cmd.OutOrStdout(), output, report); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), renderReport(report))
			}

			if report.Status == health.StatusUnhealthy {
				return fmt.Errorf("%d check(s) failed", countStatus(report, health.StatusUnhealthy))
			}
			return nil
		},
	}
	c.Flags().StringVarP(&output, "output", "o", outputText, "output format (text, json, yaml)")
	return c
}

func countStatus(r *health.Report, s health.Status) int {
	n := 0
	for _, c := range r.Checks {
		if c.Status == s {
			n++
		}
	}
	return n
}

func renderReport(r *health.Report) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("mapx doctor"))
	b.WriteString("\n\n")
	for _, c := range r.Checks {
		var mark string
		switch c.Status {
		case health.StatusHealthy:
			mark = okStyle.Render("ok  ")
		case health.StatusDegraded:
			mark = warnStyle.Render("warn")
		default:
			mark = errStyle.Render("fail")
		}
		b.WriteString(mark + " " + keyStyle.Render(c.Name) + valueStyle.Render(c.Message))
		if e, ok := c.Details["error"]; ok {
			b.WriteString(mutedStyle.Render(fmt.Sprintf(" (%v)", e)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

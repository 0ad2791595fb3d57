package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sahilvermadev/mapx/internal/devserver"
	"github.com/sahilvermadev/mapx/internal/metrics"
)

type serveDevOptions struct {
	addr            string
	metricsAddr     string
	usersFile       string
	signingKey      string
	accessTTL       time.Duration
	refreshTTL      time.Duration
	shutdownTimeout time.Duration
}

func newServeDevCmd(opts *rootOptions) *cobra.Command {
	so := &serveDevOptions{}
	c := &cobra.Command{
		Use:   "serve-dev",
		Short: "Run a local backend for development",
		Long: `Run a local backend implementing the session endpoints:

  POST /dev/login          sign a fixture user in and build a callback URL
  POST /auth/refresh       exchange a refresh token for an access token
  POST /auth/logout        revoke one refresh token
  POST /auth/logout-all    revoke every refresh token of the caller
  GET  /api/me             the caller's profile
  GET  /api/username/status
  PUT  /api/username

Tokens are HS256 JWTs. Without --signing-key a random key is used, so
tokens do not survive a restart.

Example:
  mapx serve-dev --addr :3001 --metrics-addr :9090
  curl -s localhost:3001/dev/login -d '{"email":"ada@example.com","callbackUrl":"http://localhost:5173/auth/callback"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServeDev(cmd, opts, so)
		},
	}

	c.Flags().StringVar(&so.addr, "addr", ":3001", "address to listen on")
	c.Flags().StringVar(&so.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (default metrics.addr)")
	c.Flags().StringVar(&so.usersFile, "users", "", "YAML file of fixture users (default built-in users)")
	c.Flags().StringVar(&so.signingKey, "signing-key", "", "HMAC key for tokens (default random)")
	c.Flags().DurationVar(&so.accessTTL, "access-ttl", 15*time.Minute, "access token lifetime")
	c.Flags().DurationVar(&so.refreshTTL, "refresh-ttl", 7*24*time.Hour, "refresh token lifetime")
	c.Flags().DurationVar(&so.shutdownTimeout, "shutdown-timeout", 10*time.Second, "time allowed for connections to drain")
	return c
}

func runServeDev(cmd *cobra.Command, opts *rootOptions, so *serveDevOptions) error {
	cfg, logger, err := loadSettings(cmd, opts)
	if err != nil {
		return err
	}

	users, err := devserver.ParseUsers([]byte(devserver.DefaultUsers))
	if so.usersFile != "" {
		users, err = devserver.LoadUsers(so.usersFile)
	}
	if err != nil {
		return err
	}

	key := so.signingKey
	if key == "" {
		key = uuid.NewString()
	}
	issuer := devserver.NewIssuer([]byte(key), "mapx-dev", nil).WithTTL(so.accessTTL, so.refreshTTL)
	srv := devserver.New(issuer, users, devserver.WithLogger(logger))

	servers := []*http.Server{{
		Addr:              so.addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}}

	metricsAddr := so.metricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		servers = append(servers, &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Dev backend listening on %s\n", so.addr)
	if metricsAddr != "" {
		fmt.Fprintf(out, "Metrics on http://%s/metrics\n", metricsAddr)
	}
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	g, ctx := errgroup.WithContext(cmd.Context())
	for _, s := range servers {
		g.Go(func() error {
			if err := s.ListenAndServe(); !stderrors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", s.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), so.shutdownTimeout)
		defer cancel()
		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Warn("shutdown failed", "addr", s.Addr)
			}
		}
		return nil
	})

	err = g.Wait()
	if err == nil && cmd.Context().Err() != nil {
		fmt.Fprintln(out, "Server stopped")
	}
	return err
}

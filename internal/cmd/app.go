package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/sahilvermadev/mapx/internal/authapi"
	"github.com/sahilvermadev/mapx/internal/authstate"
	"github.com/sahilvermadev/mapx/internal/config"
	"github.com/sahilvermadev/mapx/internal/log"
	"github.com/sahilvermadev/mapx/internal/metrics"
	"github.com/sahilvermadev/mapx/internal/onboarding"
	"github.com/sahilvermadev/mapx/internal/session"
	"github.com/sahilvermadev/mapx/internal/signal"
	"github.com/sahilvermadev/mapx/internal/telemetry"
	"github.com/sahilvermadev/mapx/internal/tokenstore"
	"github.com/sahilvermadev/mapx/internal/transport"
	"github.com/sahilvermadev/mapx/internal/version"
)

// loadSettings reads the configuration, installs the process logger and
// starts tracing for cmd.
func loadSettings(cmd *cobra.Command, opts *rootOptions) (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Log.Format = opts.logFormat
	}

	logger := log.New(log.FromSettings(cfg.Log.Level, cfg.Log.Format))
	log.SetDefaultLogger(logger)

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version.Version
	tcfg.Enabled = cfg.Telemetry.Enabled
	tcfg.Endpoint = cfg.Telemetry.Endpoint
	tcfg.Insecure = cfg.Telemetry.Insecure
	tcfg.SampleRate = cfg.Telemetry.SampleRate
	shutdown, err := telemetry.InitProvider(cmd.Context(), tcfg)
	if err != nil {
		logger.WithError(err).Warn("tracing disabled")
		return cfg, logger, nil
	}

	ctx, span := telemetry.StartCommandSpan(cmd.Context(), cmd.CommandPath())
	cmd.SetContext(ctx)
	opts.finish = func(err error) {
		telemetry.RecordError(span, err)
		span.End()
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			logger.WithError(err).Debug("trace flush failed")
		}
	}
	return cfg, logger, nil
}

// app is the client wiring shared by the session commands.
type app struct {
	cfg       *config.Config
	logger    *log.Logger
	store     tokenstore.Store
	session   *session.Service
	machine   *authstate.Machine
	nav       *authstate.LogNavigator
	client    *http.Client
	usernames *onboarding.Client
}

func newApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, logger, err := loadSettings(cmd, opts)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()

	store, err := tokenstore.Open(ctx, cfg.Store.TokenStore())
	if err != nil {
		return nil, err
	}

	m := metrics.GetDefault()
	api := authapi.NewClient(cfg.API.BaseURL, cfg.API.Timeout)
	svc := session.New(store, api, api,
		session.WithLogger(logger),
		session.WithMetrics(m),
		session.WithExpiryBuffer(cfg.Session.ExpiryBuffer),
		session.WithLogoutTimeout(cfg.Session.LogoutTimeout),
	)

	bus := signal.NewBus()
	client := transport.NewClient(&transport.Transport{Tokens: svc, Bus: bus, Logger: logger, Metrics: m})
	client.Timeout = cfg.API.Timeout
	usernames := onboarding.NewClient(cfg.API.BaseURL, client)

	nav := authstate.NewLogNavigator(logger)
	machine := authstate.New(svc, usernames, nav,
		authstate.WithBus(bus),
		authstate.WithLogger(logger),
		authstate.WithMetrics(m),
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		session:   svc,
		machine:   machine,
		nav:       nav,
		client:    client,
		usernames: usernames,
	}, nil
}

// Close waits for background revocation and status fetches, then
// releases the store.
func (a *app) Close() error {
	a.machine.Wait()
	a.machine.Close()
	return a.store.Close()
}

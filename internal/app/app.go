package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/wabulk/internal/api"
	"github.com/foxzi/wabulk/internal/campaign"
	"github.com/foxzi/wabulk/internal/config"
	"github.com/foxzi/wabulk/internal/gateway"
	"github.com/foxzi/wabulk/internal/metrics"
	"github.com/foxzi/wabulk/internal/notify"
	"github.com/foxzi/wabulk/internal/precheck"
	"github.com/foxzi/wabulk/internal/ratelimit"
	"github.com/foxzi/wabulk/internal/sandbox"
	"github.com/foxzi/wabulk/internal/storage"
	"github.com/foxzi/wabulk/internal/template"
)

// App is the main application
type App struct {
	config         *config.Config
	db             *bolt.DB
	gateway        gateway.Gateway
	controller     *campaign.Controller
	reports        *storage.ReportStore
	notifier       *notify.Notifier
	apiServer      *api.Server
	metricsServer  *metrics.Server
	collector      *metrics.Collector
	rateLimiter    *ratelimit.Limiter
	sandboxStorage *sandbox.Storage
	logger         *slog.Logger
}

// New creates a new application instance
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	a := &App{
		config: cfg,
		db:     db,
		logger: logger,
	}
	if err := a.init(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init() error {
	cfg := a.config
	logger := a.logger

	reports, err := storage.NewReportStore(a.db)
	if err != nil {
		return err
	}
	a.reports = reports

	templates, err := template.NewStorage(a.db)
	if err != nil {
		return fmt.Errorf("failed to create template storage: %w", err)
	}

	var gw gateway.Gateway
	switch cfg.Gateway.Mode {
	case config.GatewaySandbox:
		a.sandboxStorage, err = sandbox.NewStorage(a.db)
		if err != nil {
			return fmt.Errorf("failed to create sandbox storage: %w", err)
		}
		gw = sandbox.NewGateway(a.sandboxStorage, sandbox.Config{
			UnresolvablePrefixes: cfg.Sandbox.UnresolvablePrefixes,
			SimulateErrors:       cfg.Sandbox.SimulateErrors,
			ErrorProbability:     cfg.Sandbox.ErrorProbability,
			Latency:              cfg.Sandbox.Latency,
		}, logger.With("component", "sandbox"))
		logger.Info("sandbox gateway enabled, messages are captured and not delivered")
	default:
		gw = gateway.NewClient(gateway.ClientConfig{
			BaseURL:           cfg.Gateway.BaseURL,
			APIKey:            cfg.Gateway.APIKey,
			Timeout:           cfg.Gateway.Timeout,
			RequestsPerSecond: cfg.Gateway.RequestsPerSecond,
			Burst:             cfg.Gateway.Burst,
		})
	}

	if cfg.RateLimit.Enabled {
		a.rateLimiter, err = ratelimit.NewLimiter(a.db, &ratelimit.Config{
			Global:        limitConfig(cfg.RateLimit.Global),
			Recipient:     limitConfig(cfg.RateLimit.Recipient),
			FlushInterval: cfg.RateLimit.FlushInterval,
		})
		if err != nil {
			return fmt.Errorf("failed to create rate limiter: %w", err)
		}
		gw = ratelimit.NewGateway(gw, a.rateLimiter, logger.With("component", "ratelimit"))
		logger.Info("send quota enabled")
	}
	a.gateway = gw

	if cfg.Notify.Enabled {
		a.notifier, err = notify.New(notify.Config{
			SMTPAddr:      cfg.Notify.SMTPAddr,
			Username:      cfg.Notify.Username,
			Password:      cfg.Notify.Password,
			From:          cfg.Notify.From,
			To:            cfg.Notify.To,
			SubjectPrefix: cfg.Notify.SubjectPrefix,
			DKIM: notify.DKIMConfig{
				Enabled:  cfg.Notify.DKIM.Enabled,
				Domain:   cfg.Notify.DKIM.Domain,
				Selector: cfg.Notify.DKIM.Selector,
				KeyFile:  cfg.Notify.DKIM.KeyFile,
			},
		}, logger.With("component", "notify"))
		if err != nil {
			return fmt.Errorf("failed to create notifier: %w", err)
		}
	}

	prechecker := precheck.New(gw, precheck.Config{
		Concurrency:   cfg.Precheck.Concurrency,
		LookupTimeout: cfg.Precheck.LookupTimeout,
	}, logger.With("component", "precheck"))

	opts := []campaign.Option{
		campaign.WithLogger(logger.With("component", "campaign")),
		campaign.WithPollIntervals(cfg.Campaign.PausePollInterval, cfg.Campaign.CooldownCheckInterval),
		campaign.WithFinishHook(a.saveReport),
	}
	if a.notifier != nil {
		opts = append(opts, campaign.WithFinishHook(a.notifier.Notify))
	}
	a.controller = campaign.New(gw, prechecker, opts...)

	last, err := reports.LastReport(context.Background())
	if err != nil {
		logger.Warn("failed to load last report", "error", err)
	} else if last != nil {
		a.controller.Restore(*last)
		logger.Info("restored last report", "report_id", last.ID, "rows", len(last.Rows))
	}

	if cfg.Metrics.Enabled {
		m := metrics.New()
		metrics.SetGlobal(m)
		a.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path,
			cfg.Metrics.AllowedIPs, logger.With("component", "metrics"))
		a.collector = metrics.NewCollector(m, a.controller, cfg.Storage.Path, cfg.Metrics.FlushInterval)
	}

	a.apiServer = api.NewServerWithOptions(api.ServerOptions{
		Controller:     a.controller,
		Gateway:        gw,
		Templates:      templates,
		SandboxStorage: a.sandboxStorage,
		RateLimiter:    a.rateLimiter,
		Config:         &cfg.API,
		Campaign:       cfg.Campaign,
		Logger:         logger.With("component", "api"),
	})

	return nil
}

// saveReport persists the frozen report of a finished campaign
func (a *App) saveReport(report campaign.Report, _ campaign.Progress) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.reports.SaveReport(ctx, report); err != nil {
		a.logger.Error("failed to persist report", "report_id", report.ID, "error", err)
	}
}

func limitConfig(v *config.LimitValues) *ratelimit.LimitConfig {
	if v == nil {
		return nil
	}
	return &ratelimit.LimitConfig{
		MessagesPerHour: v.MessagesPerHour,
		MessagesPerDay:  v.MessagesPerDay,
	}
}

// Controller returns the campaign controller
func (a *App) Controller() *campaign.Controller {
	return a.controller
}

// Handler returns the API handler
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting wabulk",
		"api_addr", a.config.API.ListenAddr,
		"gateway", a.config.Gateway.Mode,
		"metrics", a.config.Metrics.Enabled,
	)

	// Create context that listens for signals
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := gateway.Check(ctx, a.gateway); err != nil {
		a.logger.Warn("gateway not reachable at startup", "error", err)
	}

	// Channel to collect errors
	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.metricsServer != nil {
		a.collector.Start(ctx)
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	// Stop the running campaign; its report is persisted by the finish hook
	if err := a.controller.Close(shutdownCtx); err != nil {
		a.logger.Error("campaign shutdown error", "error", err)
	}

	if a.metricsServer != nil {
		a.collector.Stop()
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	// Stop rate limiter (persists counters)
	if a.rateLimiter != nil {
		if err := a.rateLimiter.Stop(); err != nil {
			a.logger.Error("rate limiter stop error", "error", err)
		}
	}

	if err := a.db.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

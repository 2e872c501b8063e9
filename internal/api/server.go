package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/wabulk/internal/campaign"
	"github.com/foxzi/wabulk/internal/config"
	"github.com/foxzi/wabulk/internal/gateway"
	"github.com/foxzi/wabulk/internal/ipfilter"
	"github.com/foxzi/wabulk/internal/metrics"
	"github.com/foxzi/wabulk/internal/ratelimit"
	"github.com/foxzi/wabulk/internal/sandbox"
	"github.com/foxzi/wabulk/internal/template"
)

// Version is reported by the health endpoint
var Version = "dev"

// ServerOptions contains the dependencies of the API server
type ServerOptions struct {
	Controller     *campaign.Controller
	Gateway        gateway.Gateway
	Templates      *template.Storage
	SandboxStorage *sandbox.Storage     // nil unless the sandbox gateway is used
	RateLimiter    *ratelimit.Limiter   // nil when quotas are disabled
	Config         *config.APIConfig
	Campaign       config.CampaignConfig
	Logger         *slog.Logger
}

// Server is the HTTP API server
type Server struct {
	router      *chi.Mux
	httpServer  *http.Server
	controller  *campaign.Controller
	gateway     gateway.Gateway
	templates   *template.Storage
	sandbox     *sandbox.Storage
	rateLimiter *ratelimit.Limiter
	config      *config.APIConfig
	campaign    config.CampaignConfig
	ipFilter    *ipfilter.Filter
	logger      *slog.Logger
	startTime   time.Time
}

// NewServerWithOptions creates a new API server
func NewServerWithOptions(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = &config.APIConfig{}
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 10 << 20
	}

	s := &Server{
		router:      chi.NewRouter(),
		controller:  opts.Controller,
		gateway:     opts.Gateway,
		templates:   opts.Templates,
		sandbox:     opts.SandboxStorage,
		rateLimiter: opts.RateLimiter,
		config:      cfg,
		campaign:    opts.Campaign,
		ipFilter:    ipfilter.New(cfg.AllowedIPs, logger),
		logger:      logger,
		startTime:   time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.ipFilter.HTTPMiddleware)
		r.Use(s.authMiddleware)

		r.Route("/bulk", func(r chi.Router) {
			r.Post("/prepare", s.handlePrepare)
			r.Post("/start", s.handleStart)
			r.Get("/progress", s.handleProgress)
			r.Post("/control", s.handleControl)
			r.Get("/report", s.handleReport)
			r.Get("/report/download", s.handleReportDownload)
			r.Get("/quota", s.handleQuota)

			r.Get("/templates", s.handleTemplateList)
			r.Post("/templates", s.handleTemplateSave)
			r.Get("/templates/{name}", s.handleTemplateGet)
			r.Delete("/templates/{name}", s.handleTemplateDelete)
		})

		r.Route("/sandbox", func(r chi.Router) {
			r.Get("/messages", s.handleSandboxList)
			r.Delete("/messages", s.handleSandboxClear)
			r.Get("/stats", s.handleSandboxStats)
		})
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddr,
		Handler:        s.router,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

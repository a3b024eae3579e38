package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brojonat/signwatch/service/config"
	"github.com/brojonat/signwatch/service/dashboard"
	"github.com/brojonat/signwatch/service/metrics"
)

// Server represents the HTTP server for the dashboard.
type Server struct {
	addr     string
	cfg      *config.Config
	store    *dashboard.Store
	poller   Poller
	session  *viewSession
	renderer *TemplateRenderer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server

	shutdown     chan struct{}
	shutdownOnce sync.Once
	unfollow     func()
}

// New creates a new HTTP server with the given dependencies.
// The metrics is optional - if nil, the /metrics endpoint won't be available.
// The dashboard page is only served after WithTemplates.
func New(cfg *config.Config, store *dashboard.Store, p Poller, m *metrics.Metrics, logger *slog.Logger) *Server {
	s := &Server{
		addr:     cfg.ServerAddr,
		cfg:      cfg,
		store:    store,
		poller:   p,
		session:  newViewSession(cfg.DefaultPageSize),
		metrics:  m,
		logger:   logger,
		shutdown: make(chan struct{}),
	}

	updates, unsubscribe := store.Subscribe(sseSubscriberBuffer)
	s.unfollow = unsubscribe
	s.session.Dispatch(dashboard.DataReplaced{Version: store.Version()})
	go s.session.follow(updates)

	return s
}

// WithTemplates adds template rendering support to the server using embedded files
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

// Handler builds the routed and instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	contract := s.cfg.ContractAddress
	explorer := s.cfg.ExplorerBaseURL
	pageSize := s.cfg.DefaultPageSize
	loc := s.cfg.DisplayLocation
	if loc == nil {
		loc = time.UTC
	}

	route := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	// Data routes
	route("GET /api/v1/transactions", "/api/v1/transactions", handleListTransactions(s.store, pageSize, explorer, s.logger))
	route("GET /api/v1/stats", "/api/v1/stats", handleGetStats(s.store, pageSize, s.logger))
	route("GET /api/v1/status", "/api/v1/status", handleGetStatus(s.store, s.poller, contract, explorer))
	route("GET /api/v1/export.csv", "/api/v1/export.csv", handleExportCSV(s.store, pageSize, loc, s.metrics, s.logger))

	// Control routes
	route("POST /api/v1/refresh", "/api/v1/refresh", handleRefresh(s.store, s.poller, contract, explorer, s.logger))
	route("PUT /api/v1/auto-refresh", "/api/v1/auto-refresh", handleSetAutoRefresh(s.poller, s.logger))
	route("DELETE /api/v1/notifications", "/api/v1/notifications", handleClearNotifications(s.store, s.logger))
	route("DELETE /api/v1/error", "/api/v1/error", handleDismissError(s.store, s.logger))

	// SSE streaming endpoint
	route("GET /api/v1/stream", "/api/v1/stream", handleStream(s.store, contract, s.shutdown, s.metrics, s.logger))

	// HTML pages (if template renderer is configured)
	if s.renderer != nil {
		route("GET /{$}", "/", handleDashboardPage(s.renderer, s.session, s.store, s.poller, contract, explorer, loc))
		route("POST /view", "/view", handleViewAction(s.session, s.store, s.poller, s.logger))
		mux.HandleFunc("GET /favicon.ico", handleFavicon())
		mux.HandleFunc("GET /favicon.svg", handleFavicon())
		s.logger.Info("HTML page endpoints enabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: SSE responses are long-lived.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	// End SSE streams first so Shutdown does not wait on them
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		s.unfollow()
	})

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

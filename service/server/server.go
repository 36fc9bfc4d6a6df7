package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	stdsync "sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fundlift/fundlift/service/chain"
	"github.com/fundlift/fundlift/service/config"
	"github.com/fundlift/fundlift/service/metrics"
	"github.com/fundlift/fundlift/service/sync"
	"github.com/fundlift/fundlift/service/wallet"
	"github.com/fundlift/fundlift/service/workflow"
)

// Server is the HTTP presentation layer. It serves the project dashboard,
// the JSON API, and the SSE event stream.
type Server struct {
	addr      string
	cfg       *config.Config
	projects  *sync.Synchronizer
	runner    *workflow.Runner
	gateway   *chain.Gateway
	connector *wallet.Connector
	sessions  *sessionState
	sseBridge *SSEBridge
	renderer  *TemplateRenderer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// sessionState holds the wallet session currently bound to this client.
// One wallet connection is active at a time, mirroring a browser wallet.
type sessionState struct {
	mu      stdsync.RWMutex
	session *wallet.Session
}

func (s *sessionState) get() *wallet.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *sessionState) set(session *wallet.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
}

// New creates the HTTP server with the given dependencies.
// The sseBridge is optional - if nil, SSE endpoints won't be available.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, projects *sync.Synchronizer, runner *workflow.Runner, gateway *chain.Gateway, connector *wallet.Connector, sseBridge *SSEBridge, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:      addr,
		cfg:       cfg,
		projects:  projects,
		runner:    runner,
		gateway:   gateway,
		connector: connector,
		sessions:  &sessionState{},
		sseBridge: sseBridge,
		metrics:   m,
		logger:    logger,
	}
}

// WithSession seeds an already-connected wallet session, e.g. from
// auto-connect at startup.
func (s *Server) WithSession(session *wallet.Session) {
	if session != nil {
		s.sessions.set(session)
		s.logger.Info("wallet session seeded", "address", session.Account.Hex())
	}
}

// WithTemplates adds HTML rendering support using embedded templates.
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.httpServer().ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Handler builds the full route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Project routes
	mux.Handle("GET /api/v1/projects", handleListProjects(s.projects, s.sessions, s.cfg, s.logger))
	mux.Handle("POST /api/v1/projects", handleCreateProject(s.runner, s.sessions, s.logger))
	mux.Handle("POST /api/v1/projects/refresh", handleRefreshProjects(s.projects, s.logger))
	mux.Handle("POST /api/v1/projects/{id}/contributions", handleContribute(s.runner, s.sessions, s.logger))
	mux.Handle("POST /api/v1/projects/{id}/withdrawal", handleWithdraw(s.runner, s.sessions, s.logger))
	mux.Handle("POST /api/v1/projects/{id}/refund", handleRefund(s.runner, s.sessions, s.logger))
	mux.Handle("GET /api/v1/projects/{id}/contributions/{address}", handleGetUserContribution(s.gateway, s.cfg, s.logger))

	// Wallet session routes
	mux.Handle("POST /api/v1/session", handleConnectWallet(s.connector, s.sessions, s.logger))
	mux.Handle("GET /api/v1/session", handleGetSession(s.sessions, s.cfg, s.logger))
	mux.Handle("DELETE /api/v1/session", handleDisconnectWallet(s.sessions, s.logger))

	// SSE streaming endpoint (if SSE bridge is configured)
	if s.sseBridge != nil {
		mux.Handle("GET /api/v1/stream/projects", handleStreamProjects(s.sseBridge, s.metrics, s.logger))
		s.logger.Info("SSE streaming endpoint enabled")
	} else {
		s.logger.Warn("SSE bridge not configured, streaming endpoint disabled")
	}

	// HTML pages (if template renderer is configured)
	if s.renderer != nil {
		mux.HandleFunc("GET /", handleDashboardPage(s.renderer, s.cfg))
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

	var handler http.Handler = mux
	if s.metrics != nil {
		handler = metrics.HTTPMetricsMiddleware(s.metrics, "api")(handler)
	}
	return corsMiddleware(handler)
}

func (s *Server) httpServer() *http.Server {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // SSE connections stay open
		IdleTimeout:  60 * time.Second,
	}
	return s.server
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.sseBridge != nil {
		s.sseBridge.Close()
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS
// preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Package server provides the HTTP server setup and wiring.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/attestry/attestry/internal/chain"
	"github.com/attestry/attestry/internal/compiler"
	"github.com/attestry/attestry/internal/config"
	"github.com/attestry/attestry/internal/engine"
	"github.com/attestry/attestry/internal/importer"
	"github.com/attestry/attestry/internal/metadata"
	"github.com/attestry/attestry/internal/middleware/logging"
	"github.com/attestry/attestry/internal/middleware/ratelimit"
	"github.com/attestry/attestry/internal/middleware/realip"
	"github.com/attestry/attestry/internal/middleware/security"
	"github.com/attestry/attestry/internal/observability/metrics"
	"github.com/attestry/attestry/internal/session"
	"github.com/attestry/attestry/internal/storage"
	verificationDomain "github.com/attestry/attestry/internal/verification/domain"
	verificationTransport "github.com/attestry/attestry/internal/verification/transport"
)

// Server is the HTTP server
type Server struct {
	cfg    *config.Config
	store  storage.Store
	logger *slog.Logger
	router *chi.Mux

	sessions *session.Store

	// Service typed via the transport interface
	verificationSvc verificationTransport.Service
}

// New creates a new server
func New(cfg *config.Config, store storage.Store, logger *slog.Logger) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		store:  store,
		logger: logger,
		router: chi.NewRouter(),
	}

	// Chain catalog (built-ins plus the optional YAML file)
	catalog, err := chain.LoadCatalog(cfg.Chains.File)
	if err != nil {
		return nil, fmt.Errorf("loading chain catalog: %w", err)
	}

	// Outbound clients
	rpc := chain.NewClient(time.Duration(cfg.Chains.RPCTimeoutSec) * time.Second)
	comp := compiler.NewClient(cfg.Compiler.URL, time.Duration(cfg.Compiler.TimeoutSeconds)*time.Second)
	explorer := importer.NewClient(cfg.Explorer.APIKey, time.Duration(cfg.Explorer.TimeoutSeconds)*time.Second)
	resolver := metadata.NewResolver(cfg.Metadata.GatewayURL, time.Duration(cfg.Metadata.TimeoutSeconds)*time.Second)

	// Verification collaborators
	grouper := engine.NewGrouper(resolver, logger)
	matcher := engine.NewMatcher(comp, catalog, rpc, logger)
	importAdapter := engine.NewImportAdapter(explorer, comp, catalog, logger)

	s.sessions = session.NewStore(
		time.Duration(cfg.Session.TTLMinutes)*time.Minute,
		time.Duration(cfg.Session.SweepMinutes)*time.Minute,
		logger,
	)
	metrics.RegisterSessionGauge(s.sessions.Count)

	s.verificationSvc = verificationDomain.NewService(
		grouper, matcher, importAdapter, store, logger,
		cfg.Session.MaxBatchSize, cfg.Session.MaxSessionSize,
	)

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// MetricsHandler returns the metrics HTTP handler for separate metrics server
func (s *Server) MetricsHandler() http.Handler {
	return metrics.Handler()
}

func (s *Server) setupMiddleware() {
	// Order matters! Security middleware runs first to block malicious requests early.

	// 1. Real IP extraction (must be first to set client IP for other middleware)
	s.router.Use(realip.Middleware(realip.Config{
		TrustProxy:     s.cfg.Proxy.TrustProxy,
		TrustedProxies: s.cfg.Proxy.TrustedProxies,
	}))

	// 2. Security filter (blocks malicious patterns, bypasses health checks)
	s.router.Use(security.FilterMiddleware(s.cfg.Security.FilterEnabled))

	// 3. Body size limit
	s.router.Use(security.MaxBodySizeMiddleware(s.cfg.Security.MaxBodySizeMB))

	// 4. Rate limiting (bypasses health checks)
	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
	}))

	// 5. Standard middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	// 6. CORS. Credentials must be allowed for the session cookie, so the
	// origin is echoed back instead of wildcarded.
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			} else {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
}

func (s *Server) setupRoutes() {
	// Health checks
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleHealth)

	handler := verificationTransport.NewHandler(s.verificationSvc, s.sessions, s.store, s.cfg.Session.CookieName)
	handler.RegisterRoutes(s.router)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Package server assembles the HTTP + WebSocket API in front of the
// resolution daemon.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prophecy-labs/prophecyd/internal/domain"
	"github.com/prophecy-labs/prophecyd/internal/server/handler"
	"github.com/prophecy-labs/prophecyd/internal/server/middleware"
	"github.com/prophecy-labs/prophecyd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateWindow. Zero disables
	// the middleware.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Markets    *handler.MarketHandler
	Resolution *handler.ResolutionHandler
	Evidence   *handler.EvidenceHandler
	Logs       *handler.LogsHandler
	Settlement *handler.SettlementHandler
	Reconsider *handler.ReconsiderHandler
}

// Server is the headless HTTP + WebSocket API server for the resolution
// daemon.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. limiter may be nil to skip API rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required for this either, auth middleware wraps
	// everything; operators scrape it with the same key).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market endpoints.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)

	// Resolution control.
	mux.HandleFunc("POST /api/resolve/{id}", handlers.Resolution.Trigger)
	mux.HandleFunc("POST /api/resolve/{id}/schedule", handlers.Resolution.Schedule)
	mux.HandleFunc("DELETE /api/resolve/{id}/schedule", handlers.Resolution.CancelSchedule)
	mux.HandleFunc("GET /api/resolve/scheduled", handlers.Resolution.ListScheduled)
	mux.HandleFunc("POST /api/resolve/{id}/resume", handlers.Resolution.Resume)
	mux.HandleFunc("POST /api/markets/{id}/dispute", handlers.Resolution.Dispute)

	// Evidence ingress.
	mux.HandleFunc("POST /api/markets/{id}/evidence", handlers.Evidence.Submit)
	mux.HandleFunc("GET /api/markets/{id}/evidence", handlers.Evidence.List)

	// Narration stream.
	mux.HandleFunc("GET /api/logs", handlers.Logs.Tail)
	mux.HandleFunc("GET /api/markets/{id}/logs", handlers.Logs.TailByMarket)

	// Settled artifacts.
	mux.HandleFunc("GET /api/markets/{id}/transcript", handlers.Settlement.GetTranscript)
	mux.HandleFunc("GET /api/markets/{id}/distribution", handlers.Settlement.GetDistribution)
	mux.HandleFunc("GET /api/audit", handlers.Settlement.ListAudit)

	// Reconsideration.
	mux.HandleFunc("POST /api/markets/{id}/reconsider", handlers.Reconsider.Run)
	mux.HandleFunc("GET /api/markets/{id}/reconsiderations", handlers.Reconsider.List)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws/logs", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // reconsideration runs synchronously
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

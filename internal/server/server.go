// Package server exposes the dashboard API: REST endpoints over the live
// engine and its stores, a WebSocket event stream and the Prometheus
// scrape endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/DecentralizedMoney/matreshka/internal/server/handler"
	"github.com/DecentralizedMoney/matreshka/internal/server/middleware"
	"github.com/DecentralizedMoney/matreshka/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
}

// Handlers aggregates the endpoint handlers the server registers.
type Handlers struct {
	Health        *handler.HealthHandler
	Status        *handler.StatusHandler
	Venues        *handler.VenueHandler
	Opportunities *handler.OpportunityHandler
	Executions    *handler.ExecutionHandler
	Performance   *handler.PerformanceHandler
	Risk          *handler.RiskHandler
}

// Server is the headless HTTP and WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain. The
// metrics handler and WebSocket hub are optional.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, metricsHandler http.Handler, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.Check)
	mux.HandleFunc("GET /api/status", handlers.Status.Status)

	mux.HandleFunc("GET /api/venues", handlers.Venues.List)
	mux.HandleFunc("GET /api/venues/balances", handlers.Venues.Balances)

	mux.HandleFunc("GET /api/opportunities", handlers.Opportunities.ListActive)
	mux.HandleFunc("GET /api/opportunities/recent", handlers.Opportunities.ListRecent)

	mux.HandleFunc("GET /api/executions", handlers.Executions.ListLive)
	mux.HandleFunc("GET /api/executions/recent", handlers.Executions.ListRecent)
	mux.HandleFunc("GET /api/executions/{id}", handlers.Executions.Get)

	mux.HandleFunc("GET /api/performance", handlers.Performance.Snapshot)

	mux.HandleFunc("GET /api/risk", handlers.Risk.State)
	mux.HandleFunc("GET /api/risk/events", handlers.Risk.ListEvents)
	mux.HandleFunc("POST /api/risk/stop", handlers.Risk.Stop)

	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// Start listens and blocks until the server errors or shuts down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// Package server assembles the HTTP API: routes, middleware and the
// websocket hub.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/candlefi/candle-markets/internal/domain"
	"github.com/candlefi/candle-markets/internal/server/handler"
	"github.com/candlefi/candle-markets/internal/server/middleware"
	"github.com/candlefi/candle-markets/internal/server/ws"
)

// Config holds the server's listen and security settings. A zero RateLimit
// disables request throttling.
type Config struct {
	Port        int
	AdminToken  string
	CORSOrigins []string
	RateLimit   int
	RateWindow  time.Duration
	Limiter     domain.RateLimiter
}

// Handlers groups the route handlers the server mounts. Lifecycle and Hub may
// be nil; their routes are skipped.
type Handlers struct {
	Health    *handler.HealthHandler
	Market    *handler.MarketHandler
	Position  *handler.PositionHandler
	Bet       *handler.BetHandler
	Claim     *handler.ClaimHandler
	Lifecycle *handler.LifecycleHandler
	Hub       *ws.Hub
}

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	hub        *ws.Hub
	logger     *slog.Logger
}

// New builds the server with its full route table and middleware chain.
func New(cfg Config, h Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.Health)
	mux.HandleFunc("GET /api/markets", h.Market.List)
	mux.HandleFunc("GET /api/markets/latest", h.Market.Latest)
	mux.HandleFunc("GET /api/markets/{id}", h.Market.Get)
	mux.HandleFunc("GET /api/markets/{id}/quote", h.Market.Quote)
	mux.HandleFunc("GET /api/positions", h.Position.Positions)
	mux.HandleFunc("GET /api/pnl", h.Position.PnL)
	mux.HandleFunc("GET /api/claimable", h.Position.Claimable)
	mux.HandleFunc("POST /api/bets", h.Bet.Record)
	mux.HandleFunc("POST /api/claims", h.Claim.Record)

	if h.Lifecycle != nil {
		adminAuth := middleware.AdminAuth(cfg.AdminToken)
		mux.Handle("POST /api/markets/force-create",
			adminAuth(http.HandlerFunc(h.Lifecycle.ForceCreate)))
	}

	if h.Hub != nil {
		mux.HandleFunc("GET /ws", h.Hub.HandleWS)
	}

	// Outermost first: recover, then logging, then CORS, then throttling.
	var root http.Handler = mux
	if cfg.RateLimit > 0 && cfg.Limiter != nil {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		root = middleware.RateLimit(cfg.Limiter, cfg.RateLimit, window)(root)
	}
	root = middleware.CORS(cfg.CORSOrigins)(root)
	root = middleware.Logging(logger)(root)
	root = middleware.Recover(logger)(root)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      root,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		hub:    h.Hub,
		logger: logger.With("component", "server"),
	}
}

// Start runs the websocket hub and the HTTP listener until ctx is cancelled,
// then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	if s.hub != nil {
		go func() {
			if err := s.hub.Run(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("websocket hub stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		s.logger.Info("http server stopped")
		return nil
	}
}

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/marketfold/venue/internal/domain"
	"github.com/marketfold/venue/internal/server/handler"
	"github.com/marketfold/venue/internal/server/middleware"
	"github.com/marketfold/venue/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port               int
	CORSOrigins        []string
	APIKey             string // if empty, authentication is disabled
	RateLimitPerMinute int    // per-client request limit, 0 disables
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Contracts *handler.ContractHandler
	Trades    *handler.TradeHandler
	Orders    *handler.OrderHandler
	Liquidity *handler.LiquidityHandler
	Users     *handler.UserHandler
}

// Server is the HTTP + WebSocket API for the venue.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (rate limiting, logging, CORS, auth) wired around it.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Contract endpoints.
	mux.HandleFunc("POST /api/contracts", handlers.Contracts.CreateContract)
	mux.HandleFunc("GET /api/contracts", handlers.Contracts.ListContracts)
	mux.HandleFunc("GET /api/contracts/{id}", handlers.Contracts.GetContract)
	mux.HandleFunc("GET /api/contracts/slug/{slug}", handlers.Contracts.GetContractBySlug)
	mux.HandleFunc("GET /api/contracts/{id}/expected-value", handlers.Contracts.ExpectedValue)
	mux.HandleFunc("POST /api/contracts/{id}/resolve", handlers.Contracts.ResolveContract)

	// Trade endpoints.
	mux.HandleFunc("POST /api/contracts/{id}/buy", handlers.Trades.Buy)
	mux.HandleFunc("POST /api/contracts/{id}/sell", handlers.Trades.Sell)
	mux.HandleFunc("POST /api/contracts/{id}/multi-buy", handlers.Trades.MultiBuy)
	mux.HandleFunc("POST /api/contracts/{id}/numeric-buy", handlers.Trades.NumericBuy)
	mux.HandleFunc("GET /api/contracts/{id}/bets", handlers.Trades.ListBets)

	// Limit order endpoints.
	mux.HandleFunc("POST /api/orders", handlers.Orders.PlaceOrder)
	mux.HandleFunc("GET /api/orders", handlers.Orders.ListOrders)
	mux.HandleFunc("DELETE /api/orders/{id}", handlers.Orders.CancelOrder)

	// Liquidity endpoints.
	mux.HandleFunc("POST /api/contracts/{id}/liquidity", handlers.Liquidity.AddLiquidity)
	mux.HandleFunc("POST /api/contracts/{id}/liquidity/remove", handlers.Liquidity.RemoveLiquidity)
	mux.HandleFunc("GET /api/contracts/{id}/liquidity", handlers.Liquidity.ListProvisions)

	// User and profit endpoints.
	mux.HandleFunc("POST /api/users", handlers.Users.Register)
	mux.HandleFunc("GET /api/users/{id}", handlers.Users.GetUser)
	mux.HandleFunc("GET /api/users/{id}/bets", handlers.Users.ListUserBets)
	mux.HandleFunc("GET /api/users/{id}/profit", handlers.Users.UserProfit)
	mux.HandleFunc("GET /api/profit", handlers.Users.Leaderboard)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimitPerMinute > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitPerMinute, time.Minute)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

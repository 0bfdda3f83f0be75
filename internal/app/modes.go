package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marketfold/venue/internal/domain"
	"github.com/marketfold/venue/internal/engine/settle"
	"github.com/marketfold/venue/internal/server"
	"github.com/marketfold/venue/internal/server/handler"
	"github.com/marketfold/venue/internal/server/ws"
	"github.com/marketfold/venue/internal/service"
)

// services bundles the service layer built on top of wired dependencies.
type services struct {
	trades    *service.TradeService
	contracts *service.ContractService
	liquidity *service.LiquidityService
	settle    *service.SettleService
	users     *service.UserService
}

// buildServices constructs the full service layer from the configuration and
// wired dependencies.
func (a *App) buildServices(deps *Dependencies) *services {
	marketParams := service.MarketParams{
		CreatorFeeRate:     a.cfg.Market.CreatorFeeRate,
		MaxFillProbability: a.cfg.Market.MaxFillProbability,
		LockTTL:            a.cfg.Market.TradeLockTTL.Duration,
		TradesPerMinute:    a.cfg.Server.RateLimitPerMinute,
	}
	contractParams := service.ContractParams{
		CreatorFeeRate: a.cfg.Market.CreatorFeeRate,
		MinAnte:        a.cfg.Market.MinAnte,
		MaxAnswers:     a.cfg.Market.MaxAnswers,
		LockTTL:        a.cfg.Market.TradeLockTTL.Duration,
	}
	excluded := make(map[string]bool, len(a.cfg.Ranking.ExcludedIDs))
	for _, id := range a.cfg.Ranking.ExcludedIDs {
		excluded[id] = true
	}
	policy := settle.Policy{
		RequirePublic: a.cfg.Ranking.RequirePublic,
		RequireRanked: a.cfg.Ranking.RequireRanked,
		ExcludedIDs:   excluded,
	}

	return &services{
		trades: service.NewTradeService(
			deps.ContractStore, deps.BetStore, deps.OrderStore, deps.UserStore,
			deps.TradeStore, deps.LockManager, deps.RateLimiter,
			deps.ProbabilityCache, deps.SignalBus, deps.AuditStore,
			a.logger, marketParams,
		),
		contracts: service.NewContractService(
			deps.ContractStore, deps.BetStore, deps.UserStore, deps.TradeStore,
			deps.LockManager, deps.ProbabilityCache, deps.SignalBus,
			deps.AuditStore, a.logger, contractParams,
		),
		liquidity: service.NewLiquidityService(
			deps.ContractStore, deps.LiquidityStore, deps.UserStore,
			deps.TradeStore, deps.LockManager, deps.ProbabilityCache,
			deps.SignalBus, deps.AuditStore, a.logger,
			a.cfg.Market.TradeLockTTL.Duration,
		),
		settle: service.NewSettleService(
			deps.ContractStore, deps.BetStore, deps.AuditStore, a.logger, policy,
		),
		users: service.NewUserService(
			deps.UserStore, deps.BetStore, deps.AuditStore, a.logger,
		),
	}
}

// ServeMode runs the HTTP API and WebSocket hub until the context is
// cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps, a.buildServices(deps))
	return g.Wait()
}

// SettleMode runs a profit aggregation pass and, when archiving is enabled,
// an archive sweep. With a positive archive interval both repeat on a ticker
// until the context is cancelled; otherwise the mode is a one-shot run.
func (a *App) SettleMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting settle mode")

	svcs := a.buildServices(deps)
	if err := a.settlePass(ctx, deps, svcs); err != nil {
		return err
	}

	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		return nil
	}
	return a.settleLoop(ctx, deps, svcs, interval)
}

// FullMode runs the HTTP API alongside the periodic settle/archive loop.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	svcs := a.buildServices(deps)
	a.startServer(ctx, g, deps, svcs)

	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = time.Hour
	}
	g.Go(func() error {
		return a.settleLoop(ctx, deps, svcs, interval)
	})

	return g.Wait()
}

// startServer adds the HTTP server and WebSocket hub goroutines to the given
// errgroup. The server is shut down gracefully when the context is cancelled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Contracts: handler.NewContractHandler(svcs.contracts, a.logger),
		Trades:    handler.NewTradeHandler(svcs.trades, a.logger),
		Orders:    handler.NewOrderHandler(svcs.trades, a.logger),
		Liquidity: handler.NewLiquidityHandler(svcs.liquidity, a.logger),
		Users:     handler.NewUserHandler(svcs.users, svcs.settle, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:               a.cfg.Server.Port,
		CORSOrigins:        a.cfg.Server.CORSOrigins,
		APIKey:             a.cfg.Server.APIKey,
		RateLimitPerMinute: a.cfg.Server.RateLimitPerMinute,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// settleLoop repeats settlePass on the given interval until the context is
// cancelled. A failing pass is logged and retried on the next tick rather
// than aborting the loop.
func (a *App) settleLoop(ctx context.Context, deps *Dependencies, svcs *services, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.settlePass(ctx, deps, svcs); err != nil {
				a.logger.WarnContext(ctx, "settle pass failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// settlePass aggregates profit over all eligible resolved contracts and, when
// the archiver is wired, sweeps resolved contracts past retention into cold
// storage.
func (a *App) settlePass(ctx context.Context, deps *Dependencies, svcs *services) error {
	rep, err := svcs.settle.AggregateProfit(ctx, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("settle pass: aggregate profit: %w", err)
	}
	a.logger.InfoContext(ctx, "profit aggregation complete",
		slog.Int("users", len(rep.Users)),
		slog.Int("skipped_bets", len(rep.Skipped)),
	)

	if deps.Archiver != nil {
		retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
		archived, err := deps.Archiver.Sweep(ctx, retention)
		if err != nil {
			return fmt.Errorf("settle pass: archive sweep: %w", err)
		}
		a.logger.InfoContext(ctx, "archive sweep complete",
			slog.Int("contracts_archived", archived),
		)
	}
	return nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marketfold/venue/internal/domain"
	"github.com/marketfold/venue/internal/engine/settle"
)

// SettleService aggregates realized profit across resolved contracts.
type SettleService struct {
	contracts domain.ContractStore
	bets      domain.BetStore
	audit     domain.AuditStore
	logger    *slog.Logger
	policy    settle.Policy
}

// NewSettleService creates a SettleService with all required dependencies.
func NewSettleService(
	contracts domain.ContractStore,
	bets domain.BetStore,
	audit domain.AuditStore,
	logger *slog.Logger,
	policy settle.Policy,
) *SettleService {
	return &SettleService{
		contracts: contracts,
		bets:      bets,
		audit:     audit,
		logger:    logger,
		policy:    policy,
	}
}

const settlePageSize = 200

// AggregateProfit settles every policy-eligible resolved contract into
// per-user profit metrics. Bets that fail to settle are reported in the
// result and logged, never silently dropped.
func (s *SettleService) AggregateProfit(ctx context.Context, opts domain.ListOpts) (settle.Report, error) {
	var contracts []domain.Contract
	page := domain.ListOpts{Limit: settlePageSize, Since: opts.Since, Until: opts.Until}
	for {
		batch, err := s.contracts.ListResolved(ctx, page)
		if err != nil {
			return settle.Report{}, fmt.Errorf("settle_service: list resolved: %w", err)
		}
		contracts = append(contracts, batch...)
		if len(batch) < page.Limit {
			break
		}
		page.Offset += page.Limit
	}

	var bets []domain.Bet
	for _, c := range contracts {
		if !s.policy.Eligible(c) {
			continue
		}
		betPage := domain.ListOpts{Limit: settlePageSize}
		for {
			batch, err := s.bets.ListByContract(ctx, c.ID, betPage)
			if err != nil {
				return settle.Report{}, fmt.Errorf("settle_service: list bets for %q: %w", c.ID, err)
			}
			bets = append(bets, batch...)
			if len(batch) < betPage.Limit {
				break
			}
			betPage.Offset += betPage.Limit
		}
	}

	rep := settle.AggregateProfit(contracts, bets, s.policy)
	for _, sk := range rep.Skipped {
		s.logger.WarnContext(ctx, "settle_service: skipped bet",
			slog.String("contract_id", sk.ContractID),
			slog.String("bet_id", sk.BetID),
			slog.String("reason", sk.Reason),
		)
	}

	if auditErr := s.audit.Log(ctx, "profit_aggregated", map[string]any{
		"contracts": len(contracts),
		"bets":      len(bets),
		"users":     len(rep.Users),
		"skipped":   len(rep.Skipped),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "settle_service: audit log failed",
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "settle_service: profit aggregated",
		slog.Int("contracts", len(contracts)),
		slog.Int("users", len(rep.Users)),
		slog.Int("skipped", len(rep.Skipped)),
	)
	return rep, nil
}

// UserProfit settles one user's realized profit across eligible resolved
// contracts.
func (s *SettleService) UserProfit(ctx context.Context, userID string) (settle.ProfitMetrics, error) {
	rep, err := s.AggregateProfit(ctx, domain.ListOpts{})
	if err != nil {
		return settle.ProfitMetrics{}, err
	}
	if m := rep.Users[userID]; m != nil {
		return *m, nil
	}
	return settle.ProfitMetrics{UserID: userID}, nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marketfold/venue/internal/domain"
)

// UserService manages venue accounts.
type UserService struct {
	users  domain.UserStore
	bets   domain.BetStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewUserService creates a UserService with all required dependencies.
func NewUserService(users domain.UserStore, bets domain.BetStore, audit domain.AuditStore, logger *slog.Logger) *UserService {
	return &UserService{users: users, bets: bets, audit: audit, logger: logger}
}

// Register creates a new account with a starting balance.
func (s *UserService) Register(ctx context.Context, username string, startingBalance float64) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, domain.Validation("username", 0, "must not be empty")
	}
	if startingBalance < 0 {
		return domain.User{}, domain.Validation("balance", startingBalance, "must be non-negative")
	}

	now := time.Now().UTC()
	u := domain.User{
		ID:        uuid.New().String(),
		Username:  username,
		Balance:   startingBalance,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return domain.User{}, fmt.Errorf("user_service: create: %w", err)
	}

	if auditErr := s.audit.Log(ctx, "user_registered", map[string]any{
		"user_id":  u.ID,
		"username": u.Username,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "user_service: audit log failed",
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user_service: user registered",
		slog.String("user_id", u.ID),
		slog.String("username", u.Username),
	)
	return u, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id string) (domain.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("user_service: get %q: %w", id, err)
	}
	return u, nil
}

// ListBets returns a user's bets with pagination.
func (s *UserService) ListBets(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error) {
	bets, err := s.bets.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("user_service: list bets: %w", err)
	}
	return bets, nil
}

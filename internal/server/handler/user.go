package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/marketfold/venue/internal/domain"
	"github.com/marketfold/venue/internal/engine/settle"
)

// UserService defines the methods the user handler requires from the service
// layer.
type UserService interface {
	Register(ctx context.Context, username string, startingBalance float64) (domain.User, error)
	Get(ctx context.Context, id string) (domain.User, error)
	ListBets(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Bet, error)
}

// ProfitService defines the profit aggregation methods the user handler
// requires.
type ProfitService interface {
	AggregateProfit(ctx context.Context, opts domain.ListOpts) (settle.Report, error)
	UserProfit(ctx context.Context, userID string) (settle.ProfitMetrics, error)
}

// UserHandler serves account and profit endpoints.
type UserHandler struct {
	users  UserService
	profit ProfitService
	logger *slog.Logger
}

// NewUserHandler creates a UserHandler with the given services and logger.
func NewUserHandler(users UserService, profit ProfitService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		users:  users,
		profit: profit,
		logger: logger,
	}
}

// registerRequest is the JSON body for account creation.
type registerRequest struct {
	Username string  `json:"username"`
	Balance  float64 `json:"balance"`
}

// Register creates a new account.
// POST /api/users
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	u, err := h.users.Register(r.Context(), body.Username, body.Balance)
	if err != nil {
		if !isClientError(err) {
			h.logger.ErrorContext(r.Context(), "handler: register failed",
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to register user")
		return
	}

	writeJSON(w, http.StatusCreated, u)
}

// GetUser returns a single user by its ID.
// GET /api/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	u, err := h.users.Get(r.Context(), id)
	if err != nil {
		if !isClientError(err) {
			h.logger.ErrorContext(r.Context(), "handler: get user failed",
				slog.String("user_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to get user")
		return
	}

	writeJSON(w, http.StatusOK, u)
}

// ListUserBets returns a user's bet history with pagination.
// GET /api/users/{id}/bets?limit=50&offset=0
func (h *UserHandler) ListUserBets(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	opts := parseListOpts(r)

	bets, err := h.users.ListBets(r.Context(), id, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list user bets failed",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}
	if bets == nil {
		bets = []domain.Bet{}
	}

	writeJSON(w, http.StatusOK, listBetsResponse{
		Bets:   bets,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// UserProfit returns one user's realized profit across resolved contracts.
// GET /api/users/{id}/profit
func (h *UserHandler) UserProfit(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	m, err := h.profit.UserProfit(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: user profit failed",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute profit")
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// Leaderboard returns per-user profit metrics across resolved contracts.
// GET /api/profit
func (h *UserHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	rep, err := h.profit.AggregateProfit(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: leaderboard failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to aggregate profit")
		return
	}

	users := make([]*settle.ProfitMetrics, 0, len(rep.Users))
	for _, m := range rep.Users {
		users = append(users, m)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users":   users,
		"skipped": len(rep.Skipped),
	})
}

package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/marketfold/venue/internal/domain"
)

// LiquidityService defines the methods the liquidity handler requires from
// the service layer.
type LiquidityService interface {
	Add(ctx context.Context, userID, contractID string, amount float64) (domain.LiquidityProvision, error)
	Remove(ctx context.Context, userID, contractID string, liquidity float64) (domain.LiquidityProvision, error)
	ListByContract(ctx context.Context, contractID string) ([]domain.LiquidityProvision, error)
}

// LiquidityHandler serves pool subsidy endpoints.
type LiquidityHandler struct {
	liquidity LiquidityService
	logger    *slog.Logger
}

// NewLiquidityHandler creates a LiquidityHandler with the given service and
// logger.
func NewLiquidityHandler(liquidity LiquidityService, logger *slog.Logger) *LiquidityHandler {
	return &LiquidityHandler{
		liquidity: liquidity,
		logger:    logger,
	}
}

// liquidityRequest is the JSON body for adding or removing liquidity.
type liquidityRequest struct {
	UserID    string  `json:"user_id"`
	Amount    float64 `json:"amount"`    // add
	Liquidity float64 `json:"liquidity"` // remove
}

// AddLiquidity contributes currency to a contract's pool.
// POST /api/contracts/{id}/liquidity
func (h *LiquidityHandler) AddLiquidity(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var body liquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	prov, err := h.liquidity.Add(r.Context(), body.UserID, id, body.Amount)
	if err != nil {
		if !isClientError(err) {
			h.logger.ErrorContext(r.Context(), "handler: add liquidity failed",
				slog.String("contract_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to add liquidity")
		return
	}

	writeJSON(w, http.StatusCreated, prov)
}

// RemoveLiquidity withdraws part of a provider's liquidity from the pool.
// POST /api/contracts/{id}/liquidity/remove
func (h *LiquidityHandler) RemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var body liquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	prov, err := h.liquidity.Remove(r.Context(), body.UserID, id, body.Liquidity)
	if err != nil {
		if !isClientError(err) {
			h.logger.ErrorContext(r.Context(), "handler: remove liquidity failed",
				slog.String("contract_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to remove liquidity")
		return
	}

	writeJSON(w, http.StatusOK, prov)
}

// ListProvisions returns a contract's liquidity history.
// GET /api/contracts/{id}/liquidity
func (h *LiquidityHandler) ListProvisions(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	provs, err := h.liquidity.ListByContract(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list provisions failed",
			slog.String("contract_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list provisions")
		return
	}
	if provs == nil {
		provs = []domain.LiquidityProvision{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"provisions": provs})
}

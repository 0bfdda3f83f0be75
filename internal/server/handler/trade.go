package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/marketfold/venue/internal/domain"
	"github.com/marketfold/venue/internal/engine/numeric"
	"github.com/marketfold/venue/internal/service"
)

// TradeService defines the methods the trade handler requires from the
// service layer.
type TradeService interface {
	Buy(ctx context.Context, req service.BuyRequest) (domain.Bet, error)
	Sell(ctx context.Context, req service.SellRequest) (domain.Bet, error)
	MultiBuy(ctx context.Context, req service.MultiBuyRequest) ([]domain.Bet, error)
	NumericBuy(ctx context.Context, req service.NumericBuyRequest) ([]domain.Bet, error)
	ListBets(ctx context.Context, contractID string, opts domain.ListOpts) ([]domain.Bet, error)
}

// TradeHandler serves bet placement and bet history endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

// buyRequest is the JSON body for a binary market buy.
type buyRequest struct {
	UserID  string  `json:"user_id"`
	Outcome string  `json:"outcome"`
	Amount  float64 `json:"amount"`
}

// Buy purchases shares on a binary contract.
// POST /api/contracts/{id}/buy
func (h *TradeHandler) Buy(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var body buyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	bet, err := h.trades.Buy(r.Context(), service.BuyRequest{
		UserID:     body.UserID,
		ContractID: id,
		Outcome:    domain.Outcome(body.Outcome),
		Amount:     body.Amount,
	})
	if err != nil {
		if !isClientError(err) {
			h.logger.ErrorContext(r.Context(), "handler: buy failed",
				slog.String("contract_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to place bet")
		return
	}

	writeJSON(w, http.StatusCreated, bet)
}

// sellRequest is the JSON body for a share sale.
type sellRequest struct {
	UserID  string  `json:"user_id"`
	Outcome string  `json:"outcome"`
	Shares  float64 `json:"shares"`
}

// Sell sells shares back to a binary contract's pool.
// POST /api/contracts/{id}/sell
func (h *TradeHandler) Sell(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var body sellRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	bet, err := h.trades.Sell(r.Context(), service.SellRequest{
		UserID:     body.UserID,
		ContractID: id,
		Outcome:    domain.Outcome(body.Outcome),
		Shares:     body.Shares,
	})
	if err != nil {
		if !isClientError(err) {
			h.logger.ErrorContext(r.Context(), "handler: sell failed",
				slog.String("contract_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to sell shares")
		return
	}

	writeJSON(w, http.StatusCreated, bet)
}

// multiBuyRequest is the JSON body for a multi-outcome buy.
type multiBuyRequest struct {
	UserID    string   `json:"user_id"`
	AnswerIDs []string `json:"answer_ids"`
	Amount    float64  `json:"amount"`
}

// MultiBuy routes one stake across the chosen answers of a multi-outcome
// contract.
// POST /api/contracts/{id}/multi-buy
func (h *TradeHandler) MultiBuy(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var body multiBuyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if len(body.AnswerIDs) == 0 {
		writeError(w, http.StatusBadRequest, "answer_ids is required")
		return
	}

	bets, err := h.trades.MultiBuy(r.Context(), service.MultiBuyRequest{
		UserID:     body.UserID,
		ContractID: id,
		AnswerIDs:  body.AnswerIDs,
		Amount:     body.Amount,
	})
	if err != nil {
		if !isClientError(err) {
			h.logger.ErrorContext(r.Context(), "handler: multi buy failed",
				slog.String("contract_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to place bets")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"bets": bets})
}

// numericBuyRequest is the JSON body for a threshold stance on a numeric
// contract.
type numericBuyRequest struct {
	UserID string  `json:"user_id"`
	Mode   string  `json:"mode"` // "less than", "more than", "about right"
	Value  float64 `json:"value"`
	Amount float64 `json:"amount"`
}

// NumericBuy expands a threshold stance into bucket answers and fills them.
// POST /api/contracts/{id}/numeric-buy
func (h *TradeHandler) NumericBuy(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var body numericBuyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	bets, err := h.trades.NumericBuy(r.Context(), service.NumericBuyRequest{
		UserID:     body.UserID,
		ContractID: id,
		Mode:       numeric.Mode(body.Mode),
		Value:      body.Value,
		Amount:     body.Amount,
	})
	if err != nil {
		if !isClientError(err) {
			h.logger.ErrorContext(r.Context(), "handler: numeric buy failed",
				slog.String("contract_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to place bets")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"bets": bets})
}

// listBetsResponse wraps the bet history response.
type listBetsResponse struct {
	Bets   []domain.Bet `json:"bets"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// ListBets returns a contract's bet history with pagination.
// GET /api/contracts/{id}/bets?limit=50&offset=0
func (h *TradeHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	opts := parseListOpts(r)

	bets, err := h.trades.ListBets(r.Context(), id, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list bets failed",
			slog.String("contract_id", id),
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

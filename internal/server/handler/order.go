package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/marketfold/venue/internal/domain"
)

// OrderService defines the methods the order handler requires from the
// service layer.
type OrderService interface {
	PlaceOrder(ctx context.Context, o domain.LimitOrder) (domain.LimitOrder, error)
	CancelOrder(ctx context.Context, userID, orderID string) error
	ListOrders(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.LimitOrder, error)
}

// OrderHandler serves limit-order HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// placeOrderRequest is the JSON body for placing a limit order.
type placeOrderRequest struct {
	UserID     string  `json:"user_id"`
	ContractID string  `json:"contract_id"`
	AnswerID   string  `json:"answer_id"`
	Outcome    string  `json:"outcome"`
	LimitProb  float64 `json:"limit_prob"`
	Amount     float64 `json:"amount"`
}

// PlaceOrder rests a new limit order.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var body placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.UserID == "" || body.ContractID == "" {
		writeError(w, http.StatusBadRequest, "user_id and contract_id are required")
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), domain.LimitOrder{
		UserID:     body.UserID,
		ContractID: body.ContractID,
		AnswerID:   body.AnswerID,
		Outcome:    domain.Outcome(body.Outcome),
		LimitProb:  body.LimitProb,
		Amount:     body.Amount,
	})
	if err != nil {
		if !isClientError(err) {
			h.logger.ErrorContext(r.Context(), "handler: place order failed",
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to place order")
		return
	}

	writeJSON(w, http.StatusCreated, o)
}

// CancelOrder cancels an existing order by its ID. The owner is identified
// by the user_id query parameter.
// DELETE /api/orders/{id}?user_id=...
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	userID := r.URL.Query().Get("user_id")
	if id == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "order id and user_id are required")
		return
	}

	if err := h.orders.CancelOrder(r.Context(), userID, id); err != nil {
		if !isClientError(err) {
			h.logger.ErrorContext(r.Context(), "handler: cancel order failed",
				slog.String("order_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to cancel order")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "cancelled",
		"order_id": id,
	})
}

// listOrdersResponse wraps the list orders response.
type listOrdersResponse struct {
	Orders []domain.LimitOrder `json:"orders"`
}

// ListOrders returns a user's orders with pagination.
// GET /api/orders?user_id=...&limit=50&offset=0
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter required")
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), userID, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list orders failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []domain.LimitOrder{}
	}

	writeJSON(w, http.StatusOK, listOrdersResponse{Orders: orders})
}

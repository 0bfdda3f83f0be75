package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/marketfold/venue/internal/domain"
	"github.com/marketfold/venue/internal/service"
)

// ContractService defines the methods the contract handler requires from the
// service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type ContractService interface {
	CreateContract(ctx context.Context, req service.CreateContractRequest) (domain.Contract, error)
	GetContract(ctx context.Context, id string) (domain.Contract, error)
	GetContractBySlug(ctx context.Context, slug string) (domain.Contract, error)
	ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Contract, error)
	ListResolved(ctx context.Context, opts domain.ListOpts) ([]domain.Contract, error)
	ExpectedValue(ctx context.Context, id string) (float64, error)
	Resolve(ctx context.Context, req service.ResolveRequest) (domain.Contract, error)
}

// ContractHandler serves contract-related HTTP endpoints.
type ContractHandler struct {
	contracts ContractService
	logger    *slog.Logger
}

// NewContractHandler creates a ContractHandler with the given service and
// logger.
func NewContractHandler(contracts ContractService, logger *slog.Logger) *ContractHandler {
	return &ContractHandler{
		contracts: contracts,
		logger:    logger,
	}
}

// createContractRequest is the JSON body for contract creation.
type createContractRequest struct {
	CreatorID   string   `json:"creator_id"`
	Question    string   `json:"question"`
	Description string   `json:"description"`
	Visibility  string   `json:"visibility"`
	Ranked      bool     `json:"ranked"`
	Ante        float64  `json:"ante"`
	CloseTime   string   `json:"close_time"` // RFC3339, optional
	Mechanism   string   `json:"mechanism"`
	InitialProb float64  `json:"initial_prob"`
	NumericMin  float64  `json:"numeric_min"`
	NumericMax  float64  `json:"numeric_max"`
	Buckets     int      `json:"buckets"`
	Answers     []string `json:"answers"`
}

// CreateContract creates a new market.
// POST /api/contracts
func (h *ContractHandler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var body createContractRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.CreatorID == "" {
		writeError(w, http.StatusBadRequest, "creator_id is required")
		return
	}

	var closeTime time.Time
	if body.CloseTime != "" {
		t, err := time.Parse(time.RFC3339, body.CloseTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "close_time must be RFC3339")
			return
		}
		closeTime = t
	}

	c, err := h.contracts.CreateContract(r.Context(), service.CreateContractRequest{
		CreatorID:      body.CreatorID,
		Question:       body.Question,
		Description:    body.Description,
		Visibility:     domain.Visibility(body.Visibility),
		Ranked:         body.Ranked,
		Ante:           body.Ante,
		CloseTime:      closeTime,
		Mechanism:      body.Mechanism,
		InitialProb:    body.InitialProb,
		NumericMin:     body.NumericMin,
		NumericMax:     body.NumericMax,
		NumericBuckets: body.Buckets,
		AnswerTexts:    body.Answers,
	})
	if err != nil {
		if !isClientError(err) {
			h.logger.ErrorContext(r.Context(), "handler: create contract failed",
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to create contract")
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

// listContractsResponse wraps the list endpoint output with metadata.
type listContractsResponse struct {
	Contracts []domain.Contract `json:"contracts"`
	Limit     int               `json:"limit"`
	Offset    int               `json:"offset"`
}

// ListContracts returns open contracts, or resolved ones when
// ?resolved=true.
// GET /api/contracts?resolved=false&limit=50&offset=0
func (h *ContractHandler) ListContracts(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		contracts []domain.Contract
		err       error
	)
	if r.URL.Query().Get("resolved") == "true" {
		contracts, err = h.contracts.ListResolved(r.Context(), opts)
	} else {
		contracts, err = h.contracts.ListOpen(r.Context(), opts)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list contracts failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list contracts")
		return
	}
	if contracts == nil {
		contracts = []domain.Contract{}
	}

	writeJSON(w, http.StatusOK, listContractsResponse{
		Contracts: contracts,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
}

// GetContract returns a single contract by its ID.
// GET /api/contracts/{id}
func (h *ContractHandler) GetContract(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing contract id")
		return
	}

	c, err := h.contracts.GetContract(r.Context(), id)
	if err != nil {
		if !isClientError(err) {
			h.logger.ErrorContext(r.Context(), "handler: get contract failed",
				slog.String("contract_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to get contract")
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// GetContractBySlug returns a single contract by its slug.
// GET /api/contracts/slug/{slug}
func (h *ContractHandler) GetContractBySlug(w http.ResponseWriter, r *http.Request) {
	slug := pathParam(r, "slug")
	if slug == "" {
		writeError(w, http.StatusBadRequest, "missing contract slug")
		return
	}

	c, err := h.contracts.GetContractBySlug(r.Context(), slug)
	if err != nil {
		if !isClientError(err) {
			h.logger.ErrorContext(r.Context(), "handler: get contract failed",
				slog.String("slug", slug),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to get contract")
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// ExpectedValue returns the probability-weighted value of a numeric contract.
// GET /api/contracts/{id}/expected-value
func (h *ContractHandler) ExpectedValue(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing contract id")
		return
	}

	ev, err := h.contracts.ExpectedValue(r.Context(), id)
	if err != nil {
		if !isClientError(err) {
			h.logger.ErrorContext(r.Context(), "handler: expected value failed",
				slog.String("contract_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to compute expected value")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"contract_id":    id,
		"expected_value": ev,
	})
}

// resolveRequest is the JSON body for contract resolution.
type resolveRequest struct {
	ResolverID string   `json:"resolver_id"`
	Outcome    string   `json:"outcome"`
	AnswerID   string   `json:"answer_id"`
	Value      *float64 `json:"value"`
}

// ResolveContract resolves a contract and pays out every position.
// POST /api/contracts/{id}/resolve
func (h *ContractHandler) ResolveContract(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing contract id")
		return
	}

	var body resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.ResolverID == "" {
		writeError(w, http.StatusBadRequest, "resolver_id is required")
		return
	}

	c, err := h.contracts.Resolve(r.Context(), service.ResolveRequest{
		ContractID: id,
		ResolverID: body.ResolverID,
		Outcome:    domain.Outcome(body.Outcome),
		AnswerID:   body.AnswerID,
		Value:      body.Value,
	})
	if err != nil {
		if !isClientError(err) {
			h.logger.ErrorContext(r.Context(), "handler: resolve contract failed",
				slog.String("contract_id", id),
				slog.String("error", err.Error()),
			)
		}
		writeDomainError(w, err, "failed to resolve contract")
		return
	}

	writeJSON(w, http.StatusOK, c)
}

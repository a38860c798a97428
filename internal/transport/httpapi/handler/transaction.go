package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avoronkov/hearthshare/internal/ledger"
)

// dateOnly is the wire format for recurrence dates
const dateOnly = "2006-01-02"

// TransactionService defines the ledger operations the transaction
// handler needs
type TransactionService interface {
	CreateTransaction(ctx context.Context, params ledger.CreateParams) (*ledger.Transaction, error)
	UpdateTransaction(ctx context.Context, id uuid.UUID, params ledger.CreateParams) (*ledger.Transaction, error)
	DeleteTransaction(ctx context.Context, id uuid.UUID) error
	ListTransactions(ctx context.Context, filters ledger.TransactionFilters) ([]*ledger.Transaction, error)
	CanEdit(ctx context.Context, id uuid.UUID) (ledger.EditDecision, error)
}

// TransactionHandler handles transaction-related HTTP requests
type TransactionHandler struct {
	ledger TransactionService
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(svc TransactionService) *TransactionHandler {
	return &TransactionHandler{ledger: svc}
}

// TransactionRequest represents the transaction create/update request
type TransactionRequest struct {
	Creditor           string          `json:"creditor"`
	Participants       []string        `json:"participants"`
	Amount             decimal.Decimal `json:"amount"`
	Description        string          `json:"description,omitempty"`
	HouseholdID        string          `json:"householdId"`
	IsRecurring        bool            `json:"isRecurring,omitempty"`
	RecurrenceInterval string          `json:"recurrenceInterval,omitempty"`
	StartDate          string          `json:"startDate,omitempty"`
}

// toParams converts the request body into service parameters. Date parsing
// failures surface as validation errors from the service by leaving
// StartDate nil; a malformed date string is rejected here.
func (req *TransactionRequest) toParams() (ledger.CreateParams, bool) {
	params := ledger.CreateParams{
		Creditor:     req.Creditor,
		Participants: req.Participants,
		Amount:       req.Amount,
		Description:  req.Description,
		HouseholdID:  req.HouseholdID,
		IsRecurring:  req.IsRecurring,
		Interval:     ledger.RecurrenceInterval(req.RecurrenceInterval),
	}
	if req.IsRecurring && req.StartDate != "" {
		start, err := time.Parse(dateOnly, req.StartDate)
		if err != nil {
			start, err = time.Parse(time.RFC3339, req.StartDate)
			if err != nil {
				return params, false
			}
		}
		params.StartDate = &start
	}
	return params, true
}

// TransactionResponse represents a transaction on the wire
type TransactionResponse struct {
	ID                 string          `json:"id"`
	Creditor           string          `json:"creditor"`
	Participants       []string        `json:"participants"`
	Amount             decimal.Decimal `json:"amount"`
	Description        string          `json:"description,omitempty"`
	HouseholdID        string          `json:"householdId"`
	IsSettlement       bool            `json:"isSettlement"`
	IsRecurring        bool            `json:"isRecurring"`
	RecurrenceInterval string          `json:"recurrenceInterval,omitempty"`
	StartDate          string          `json:"startDate,omitempty"`
	NextPaymentDate    string          `json:"nextPaymentDate,omitempty"`
	CreatedAt          string          `json:"createdAt"`
}

func toTransactionResponse(tx *ledger.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:           tx.ID.String(),
		Creditor:     tx.Creditor,
		Participants: tx.Participants,
		Amount:       tx.Amount,
		Description:  tx.Description,
		HouseholdID:  tx.HouseholdID,
		IsSettlement: tx.IsSettlement,
		IsRecurring:  tx.IsRecurring,
		CreatedAt:    tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.IsRecurring {
		resp.RecurrenceInterval = string(tx.RecurrenceInterval)
		if tx.StartDate != nil {
			resp.StartDate = tx.StartDate.Format(dateOnly)
		}
		if tx.NextPaymentDate != nil {
			resp.NextPaymentDate = tx.NextPaymentDate.Format(dateOnly)
		}
	}
	return resp
}

// ListTransactions handles GET /transactions
func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	householdID := r.URL.Query().Get("householdId")
	if householdID == "" {
		respondWithError(w, http.StatusBadRequest, "householdId is required")
		return
	}

	txs, err := h.ledger.ListTransactions(r.Context(), ledger.TransactionFilters{HouseholdID: householdID})
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, toTransactionResponses(txs))
}

// ListRecurring handles GET /transactions/recurring
func (h *TransactionHandler) ListRecurring(w http.ResponseWriter, r *http.Request) {
	householdID := r.URL.Query().Get("householdId")
	if householdID == "" {
		respondWithError(w, http.StatusBadRequest, "householdId is required")
		return
	}

	txs, err := h.ledger.ListTransactions(r.Context(), ledger.TransactionFilters{
		HouseholdID:   householdID,
		RecurringOnly: true,
	})
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, toTransactionResponses(txs))
}

// CreateTransaction handles POST /transactions
func (h *TransactionHandler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params, ok := req.toParams()
	if !ok {
		respondWithError(w, http.StatusBadRequest, "startDate: must be a valid date (YYYY-MM-DD)")
		return
	}

	tx, err := h.ledger.CreateTransaction(r.Context(), params)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

// UpdateTransaction handles PUT /transactions/{id}
func (h *TransactionHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	params, okDate := req.toParams()
	if !okDate {
		respondWithError(w, http.StatusBadRequest, "startDate: must be a valid date (YYYY-MM-DD)")
		return
	}

	tx, err := h.ledger.UpdateTransaction(r.Context(), id, params)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, toTransactionResponse(tx))
}

// DeleteTransaction handles DELETE /transactions/{id}
func (h *TransactionHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.ledger.DeleteTransaction(r.Context(), id); err != nil {
		respondAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// CanEdit handles GET /transactions/{id}/can-edit
func (h *TransactionHandler) CanEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	decision, err := h.ledger.CanEdit(r.Context(), id)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, decision)
}

func toTransactionResponses(txs []*ledger.Transaction) []TransactionResponse {
	responses := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		responses = append(responses, toTransactionResponse(tx))
	}
	return responses
}

// parseID extracts and parses the {id} URL parameter
func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

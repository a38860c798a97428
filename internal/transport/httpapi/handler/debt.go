package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avoronkov/hearthshare/internal/ledger"
)

// DebtService defines the ledger operations the debt handler needs
type DebtService interface {
	ListDebts(ctx context.Context, householdID string, includeSettled bool) ([]*ledger.LedgerEntry, error)
	NetBalances(ctx context.Context, householdID string) ([]ledger.PairBalance, error)
	Settle(ctx context.Context, debtor, creditor, householdID string) (*ledger.LedgerEntry, error)
	UpdateEntry(ctx context.Context, id uuid.UUID, params ledger.UpdateEntryParams) (*ledger.LedgerEntry, error)
	DeleteEntry(ctx context.Context, id uuid.UUID) error
}

// DebtHandler handles debt-related HTTP requests
type DebtHandler struct {
	ledger DebtService
}

// NewDebtHandler creates a new debt handler
func NewDebtHandler(svc DebtService) *DebtHandler {
	return &DebtHandler{ledger: svc}
}

// EntryResponse represents a ledger entry on the wire
type EntryResponse struct {
	ID                   string          `json:"id"`
	EntryType            string          `json:"entryType"`
	Creditor             string          `json:"creditor"`
	Debtor               string          `json:"debtor"`
	Amount               decimal.Decimal `json:"amount"`
	Description          string          `json:"description,omitempty"`
	HouseholdID          string          `json:"householdId"`
	RelatedTransactionID string          `json:"relatedTransactionId,omitempty"`
	IsSettled            bool            `json:"isSettled"`
	CreatedAt            string          `json:"createdAt"`
}

func toEntryResponse(e *ledger.LedgerEntry) EntryResponse {
	resp := EntryResponse{
		ID:          e.ID.String(),
		EntryType:   string(e.EntryType),
		Creditor:    e.Creditor,
		Debtor:      e.Debtor,
		Amount:      e.Amount,
		Description: e.Description,
		HouseholdID: e.HouseholdID,
		IsSettled:   e.IsSettled,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
	if e.RelatedTransactionID != nil {
		resp.RelatedTransactionID = e.RelatedTransactionID.String()
	}
	return resp
}

// ListDebts handles GET /debts
func (h *DebtHandler) ListDebts(w http.ResponseWriter, r *http.Request) {
	householdID := r.URL.Query().Get("householdId")
	if householdID == "" {
		respondWithError(w, http.StatusBadRequest, "householdId is required")
		return
	}
	includeSettled := r.URL.Query().Get("includeSettled") == "true"

	entries, err := h.ledger.ListDebts(r.Context(), householdID, includeSettled)
	if err != nil {
		respondAppError(w, err)
		return
	}

	responses := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		responses = append(responses, toEntryResponse(e))
	}
	respondWithJSON(w, http.StatusOK, responses)
}

// GetBalances handles GET /debts/balances
func (h *DebtHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	householdID := r.URL.Query().Get("householdId")
	if householdID == "" {
		respondWithError(w, http.StatusBadRequest, "householdId is required")
		return
	}

	balances, err := h.ledger.NetBalances(r.Context(), householdID)
	if err != nil {
		respondAppError(w, err)
		return
	}
	if balances == nil {
		balances = []ledger.PairBalance{}
	}

	respondWithJSON(w, http.StatusOK, balances)
}

// SettleRequest represents the settle request body
type SettleRequest struct {
	Debtor      string `json:"debtor"`
	Creditor    string `json:"creditor"`
	HouseholdID string `json:"householdId"`
}

// Settle handles POST /debts/settle
func (h *DebtHandler) Settle(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	settlement, err := h.ledger.Settle(r.Context(), req.Debtor, req.Creditor, req.HouseholdID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, toEntryResponse(settlement))
}

// UpdateEntryRequest represents the debt update request body
type UpdateEntryRequest struct {
	Creditor    string          `json:"creditor"`
	Debtor      string          `json:"debtor"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
}

// UpdateDebt handles PUT /debts/{id}
func (h *DebtHandler) UpdateDebt(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req UpdateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.ledger.UpdateEntry(r.Context(), id, ledger.UpdateEntryParams{
		Creditor:    req.Creditor,
		Debtor:      req.Debtor,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, toEntryResponse(entry))
}

// DeleteDebt handles DELETE /debts/{id}
func (h *DebtHandler) DeleteDebt(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.ledger.DeleteEntry(r.Context(), id); err != nil {
		respondAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

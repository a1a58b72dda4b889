package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerkit/ledgerkit/internal/ledger"
	"github.com/ledgerkit/ledgerkit/internal/service"
)

// TransactionHandler handles transaction requests
type TransactionHandler struct {
	transactions *service.TransactionService
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(transactions *service.TransactionService) *TransactionHandler {
	return &TransactionHandler{transactions: transactions}
}

// EntryRequest is one leg of a transaction creation request
type EntryRequest struct {
	ID               string `json:"id"`
	AccountID        string `json:"accountId"`
	Direction        string `json:"direction"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	CurrencyExponent *int32 `json:"currencyExponent"`
}

// CreateTransactionRequest represents the transaction creation request
type CreateTransactionRequest struct {
	ID             string         `json:"id"`
	Description    string         `json:"description"`
	IdempotencyKey string         `json:"idempotencyKey"`
	Status         string         `json:"status"`
	EffectiveAt    *time.Time     `json:"effectiveAt"`
	LedgerEntries  []EntryRequest `json:"ledgerEntries"`
	Metadata       map[string]any `json:"metadata"`
}

// Create handles POST /api/ledgers/{ledgerID}/transactions. Replaying a
// request with an id already on disk returns the stored transaction, so the
// call is safe to retry end to end.
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req CreateTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	entries := make([]service.EntryInput, len(req.LedgerEntries))
	for i, e := range req.LedgerEntries {
		entries[i] = service.EntryInput{
			ID:               e.ID,
			AccountID:        e.AccountID,
			Direction:        ledger.Direction(e.Direction),
			Amount:           e.Amount,
			Currency:         e.Currency,
			CurrencyExponent: e.CurrencyExponent,
		}
	}

	input := service.CreateTransactionInput{
		ID:             req.ID,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
		Status:         ledger.TransactionStatus(req.Status),
		Metadata:       req.Metadata,
		Entries:        entries,
	}
	if req.EffectiveAt != nil {
		input.EffectiveAt = *req.EffectiveAt
	}

	txn, err := h.transactions.Create(r.Context(), orgID, chi.URLParam(r, "ledgerID"), input)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toTransactionResponse(txn), http.StatusOK)
}

// Get handles GET /api/ledgers/{ledgerID}/transactions/{transactionID}
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	txn, err := h.transactions.Get(r.Context(), orgID, chi.URLParam(r, "ledgerID"), chi.URLParam(r, "transactionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toTransactionResponse(txn), http.StatusOK)
}

// List handles GET /api/ledgers/{ledgerID}/transactions
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	limit, offset, err := pagination(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var status *ledger.TransactionStatus
	if v := r.URL.Query().Get("status"); v != "" {
		s := ledger.TransactionStatus(v)
		status = &s
	}

	txns, err := h.transactions.List(r.Context(), orgID, chi.URLParam(r, "ledgerID"), status, limit, offset)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, map[string]any{"transactions": toTransactionResponses(txns)}, http.StatusOK)
}

// Post handles POST /api/ledgers/{ledgerID}/transactions/{transactionID}/post
func (h *TransactionHandler) Post(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	txn, err := h.transactions.Post(r.Context(), orgID, chi.URLParam(r, "ledgerID"), chi.URLParam(r, "transactionID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toTransactionResponse(txn), http.StatusOK)
}

// Delete handles DELETE /api/ledgers/{ledgerID}/transactions/{transactionID}
func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.transactions.Delete(r.Context(), orgID, chi.URLParam(r, "ledgerID"), chi.URLParam(r, "transactionID")); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

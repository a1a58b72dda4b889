package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerkit/ledgerkit/internal/ledger"
	"github.com/ledgerkit/ledgerkit/internal/service"
)

// AccountHandler handles account CRUD requests
type AccountHandler struct {
	accounts *service.AccountService
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// CreateAccountRequest represents the account creation request
type CreateAccountRequest struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	NormalBalance string         `json:"normalBalance"`
	Metadata      map[string]any `json:"metadata"`
}

// UpdateAccountRequest represents the account patch request
type UpdateAccountRequest struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

// Create handles POST /api/ledgers/{ledgerID}/accounts
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req CreateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	a, err := h.accounts.Create(r.Context(), orgID, chi.URLParam(r, "ledgerID"), service.CreateAccountInput{
		Name:          req.Name,
		Description:   req.Description,
		NormalBalance: ledger.Direction(req.NormalBalance),
		Metadata:      req.Metadata,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toAccountResponse(a), http.StatusCreated)
}

// Get handles GET /api/ledgers/{ledgerID}/accounts/{accountID}
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	a, err := h.accounts.Get(r.Context(), orgID, chi.URLParam(r, "ledgerID"), chi.URLParam(r, "accountID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toAccountResponse(a), http.StatusOK)
}

// List handles GET /api/ledgers/{ledgerID}/accounts
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
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

	accounts, err := h.accounts.List(r.Context(), orgID, chi.URLParam(r, "ledgerID"), limit, offset)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]AccountResponse, len(accounts))
	for i, a := range accounts {
		out[i] = toAccountResponse(a)
	}
	respondJSON(w, map[string]any{"accounts": out}, http.StatusOK)
}

// Update handles PATCH /api/ledgers/{ledgerID}/accounts/{accountID}
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req UpdateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	a, err := h.accounts.Update(r.Context(), orgID, chi.URLParam(r, "ledgerID"), chi.URLParam(r, "accountID"), service.UpdateAccountInput{
		Name:        req.Name,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toAccountResponse(a), http.StatusOK)
}

// Delete handles DELETE /api/ledgers/{ledgerID}/accounts/{accountID}
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.accounts.Delete(r.Context(), orgID, chi.URLParam(r, "ledgerID"), chi.URLParam(r, "accountID")); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

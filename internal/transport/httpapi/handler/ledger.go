package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
	"github.com/ledgerkit/ledgerkit/internal/service"
	"github.com/ledgerkit/ledgerkit/internal/transport/httpapi/middleware"
)

// LedgerHandler handles ledger CRUD requests
type LedgerHandler struct {
	ledgers *service.LedgerService
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(ledgers *service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgers: ledgers}
}

// CreateLedgerRequest represents the ledger creation request
type CreateLedgerRequest struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	Currency         string         `json:"currency"`
	CurrencyExponent int32          `json:"currencyExponent"`
	Metadata         map[string]any `json:"metadata"`
}

// UpdateLedgerRequest represents the ledger patch request
type UpdateLedgerRequest struct {
	Name        *string        `json:"name"`
	Description *string        `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

// organizationID pulls the authenticated organization out of the context.
func organizationID(r *http.Request) (string, error) {
	organizationID, ok := middleware.GetOrganizationID(r.Context())
	if !ok {
		return "", apperr.Unauthorized("no authenticated organization")
	}
	return organizationID, nil
}

// Create handles POST /api/ledgers
func (h *LedgerHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req CreateLedgerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	l, err := h.ledgers.Create(r.Context(), orgID, service.CreateLedgerInput{
		Name:             req.Name,
		Description:      req.Description,
		Currency:         req.Currency,
		CurrencyExponent: req.CurrencyExponent,
		Metadata:         req.Metadata,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toLedgerResponse(l), http.StatusCreated)
}

// Get handles GET /api/ledgers/{ledgerID}
func (h *LedgerHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	l, err := h.ledgers.Get(r.Context(), orgID, chi.URLParam(r, "ledgerID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toLedgerResponse(l), http.StatusOK)
}

// List handles GET /api/ledgers
func (h *LedgerHandler) List(w http.ResponseWriter, r *http.Request) {
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

	ledgers, err := h.ledgers.List(r.Context(), orgID, limit, offset)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]LedgerResponse, len(ledgers))
	for i, l := range ledgers {
		out[i] = toLedgerResponse(l)
	}
	respondJSON(w, map[string]any{"ledgers": out}, http.StatusOK)
}

// Update handles PATCH /api/ledgers/{ledgerID}
func (h *LedgerHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req UpdateLedgerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	l, err := h.ledgers.Update(r.Context(), orgID, chi.URLParam(r, "ledgerID"), service.UpdateLedgerInput{
		Name:        req.Name,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toLedgerResponse(l), http.StatusOK)
}

// Delete handles DELETE /api/ledgers/{ledgerID}
func (h *LedgerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.ledgers.Delete(r.Context(), orgID, chi.URLParam(r, "ledgerID")); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

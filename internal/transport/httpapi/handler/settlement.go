package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerkit/ledgerkit/internal/ledger"
	"github.com/ledgerkit/ledgerkit/internal/service"
)

// SettlementHandler handles settlement requests
type SettlementHandler struct {
	settlements *service.SettlementService
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(settlements *service.SettlementService) *SettlementHandler {
	return &SettlementHandler{settlements: settlements}
}

// CreateSettlementRequest represents the settlement creation request
type CreateSettlementRequest struct {
	SettledAccountID      string         `json:"settledAccountId"`
	ContraAccountID       string         `json:"contraAccountId"`
	Description           string         `json:"description"`
	ExternalReference     string         `json:"externalReference"`
	EffectiveAtUpperBound *time.Time     `json:"effectiveAtUpperBound"`
	Metadata              map[string]any `json:"metadata"`
}

// UpdateSettlementRequest represents the settlement patch request
type UpdateSettlementRequest struct {
	Description           *string        `json:"description"`
	ExternalReference     *string        `json:"externalReference"`
	EffectiveAtUpperBound *time.Time     `json:"effectiveAtUpperBound"`
	Metadata              map[string]any `json:"metadata"`
}

// EntryIDsRequest carries entry ids to attach or detach
type EntryIDsRequest struct {
	EntryIDs []string `json:"entryIds"`
}

// Create handles POST /api/ledgers/{ledgerID}/settlements
func (h *SettlementHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req CreateSettlementRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	stl, err := h.settlements.Create(r.Context(), orgID, chi.URLParam(r, "ledgerID"), service.CreateSettlementInput{
		SettledAccountID:      req.SettledAccountID,
		ContraAccountID:       req.ContraAccountID,
		Description:           req.Description,
		ExternalReference:     req.ExternalReference,
		EffectiveAtUpperBound: req.EffectiveAtUpperBound,
		Metadata:              req.Metadata,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toSettlementResponse(stl), http.StatusCreated)
}

// Get handles GET /api/ledgers/{ledgerID}/settlements/{settlementID}
func (h *SettlementHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	stl, err := h.settlements.Get(r.Context(), orgID, chi.URLParam(r, "ledgerID"), chi.URLParam(r, "settlementID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toSettlementResponse(stl), http.StatusOK)
}

// List handles GET /api/ledgers/{ledgerID}/settlements
func (h *SettlementHandler) List(w http.ResponseWriter, r *http.Request) {
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

	settlements, err := h.settlements.List(r.Context(), orgID, chi.URLParam(r, "ledgerID"), limit, offset)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]SettlementResponse, len(settlements))
	for i, s := range settlements {
		out[i] = toSettlementResponse(s)
	}
	respondJSON(w, map[string]any{"settlements": out}, http.StatusOK)
}

// Update handles PATCH /api/ledgers/{ledgerID}/settlements/{settlementID}
func (h *SettlementHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req UpdateSettlementRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	stl, err := h.settlements.Update(r.Context(), orgID, chi.URLParam(r, "ledgerID"), chi.URLParam(r, "settlementID"), service.UpdateSettlementInput{
		Description:           req.Description,
		ExternalReference:     req.ExternalReference,
		EffectiveAtUpperBound: req.EffectiveAtUpperBound,
		Metadata:              req.Metadata,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toSettlementResponse(stl), http.StatusOK)
}

// Delete handles DELETE /api/ledgers/{ledgerID}/settlements/{settlementID}
func (h *SettlementHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.settlements.Delete(r.Context(), orgID, chi.URLParam(r, "ledgerID"), chi.URLParam(r, "settlementID")); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddEntries handles POST /api/ledgers/{ledgerID}/settlements/{settlementID}/entries
func (h *SettlementHandler) AddEntries(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req EntryIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	stl, err := h.settlements.AddEntries(r.Context(), orgID, chi.URLParam(r, "ledgerID"), chi.URLParam(r, "settlementID"), req.EntryIDs)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toSettlementResponse(stl), http.StatusOK)
}

// RemoveEntries handles DELETE /api/ledgers/{ledgerID}/settlements/{settlementID}/entries
func (h *SettlementHandler) RemoveEntries(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req EntryIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	stl, err := h.settlements.RemoveEntries(r.Context(), orgID, chi.URLParam(r, "ledgerID"), chi.URLParam(r, "settlementID"), req.EntryIDs)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toSettlementResponse(stl), http.StatusOK)
}

// Transition handles POST /api/ledgers/{ledgerID}/settlements/{settlementID}/{status}
func (h *SettlementHandler) Transition(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	target := ledger.SettlementStatus(chi.URLParam(r, "status"))
	stl, err := h.settlements.Transition(r.Context(), orgID, chi.URLParam(r, "ledgerID"), chi.URLParam(r, "settlementID"), target)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toSettlementResponse(stl), http.StatusOK)
}

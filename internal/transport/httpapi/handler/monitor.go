package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerkit/ledgerkit/internal/ledger"
	"github.com/ledgerkit/ledgerkit/internal/service"
)

// MonitorHandler handles balance monitor requests
type MonitorHandler struct {
	monitors *service.MonitorService
}

// NewMonitorHandler creates a new monitor handler
func NewMonitorHandler(monitors *service.MonitorService) *MonitorHandler {
	return &MonitorHandler{monitors: monitors}
}

// CreateMonitorRequest represents the monitor creation request
type CreateMonitorRequest struct {
	AccountID       string                  `json:"accountId"`
	Description     string                  `json:"description"`
	AlertConditions []ledger.AlertCondition `json:"alertConditions"`
	Metadata        map[string]any          `json:"metadata"`
}

// UpdateMonitorRequest represents the monitor patch request
type UpdateMonitorRequest struct {
	Description     *string                 `json:"description"`
	AlertConditions []ledger.AlertCondition `json:"alertConditions"`
	Metadata        map[string]any          `json:"metadata"`
}

// Create handles POST /api/ledgers/{ledgerID}/monitors
func (h *MonitorHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req CreateMonitorRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	m, err := h.monitors.Create(r.Context(), orgID, chi.URLParam(r, "ledgerID"), service.CreateMonitorInput{
		AccountID:       req.AccountID,
		Description:     req.Description,
		AlertConditions: req.AlertConditions,
		Metadata:        req.Metadata,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toMonitorResponse(m), http.StatusCreated)
}

// Get handles GET /api/ledgers/{ledgerID}/monitors/{monitorID}
func (h *MonitorHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	m, err := h.monitors.Get(r.Context(), orgID, chi.URLParam(r, "monitorID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toMonitorResponse(m), http.StatusOK)
}

// List handles GET /api/ledgers/{ledgerID}/monitors
func (h *MonitorHandler) List(w http.ResponseWriter, r *http.Request) {
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

	monitors, err := h.monitors.List(r.Context(), orgID, chi.URLParam(r, "ledgerID"), limit, offset)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]MonitorResponse, len(monitors))
	for i, m := range monitors {
		out[i] = toMonitorResponse(m)
	}
	respondJSON(w, map[string]any{"monitors": out}, http.StatusOK)
}

// Update handles PATCH /api/ledgers/{ledgerID}/monitors/{monitorID}
func (h *MonitorHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req UpdateMonitorRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	m, err := h.monitors.Update(r.Context(), orgID, chi.URLParam(r, "monitorID"), service.UpdateMonitorInput{
		Description:     req.Description,
		AlertConditions: req.AlertConditions,
		Metadata:        req.Metadata,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toMonitorResponse(m), http.StatusOK)
}

// Delete handles DELETE /api/ledgers/{ledgerID}/monitors/{monitorID}
func (h *MonitorHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.monitors.Delete(r.Context(), orgID, chi.URLParam(r, "monitorID")); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Evaluate handles POST /api/ledgers/{ledgerID}/monitors/{monitorID}/evaluate
func (h *MonitorHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	results, err := h.monitors.Evaluate(r.Context(), orgID, chi.URLParam(r, "ledgerID"), chi.URLParam(r, "monitorID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, map[string]any{"results": results}, http.StatusOK)
}

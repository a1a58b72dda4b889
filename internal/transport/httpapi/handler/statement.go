package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
	"github.com/ledgerkit/ledgerkit/internal/service"
)

// StatementHandler handles account statement requests
type StatementHandler struct {
	statements *service.StatementService
}

// NewStatementHandler creates a new statement handler
func NewStatementHandler(statements *service.StatementService) *StatementHandler {
	return &StatementHandler{statements: statements}
}

// CreateStatementRequest represents the statement creation request
type CreateStatementRequest struct {
	StartDatetime *time.Time `json:"startDatetime"`
	EndDatetime   *time.Time `json:"endDatetime"`
}

// Create handles POST /api/ledgers/{ledgerID}/accounts/{accountID}/statements
func (h *StatementHandler) Create(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req CreateStatementRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if req.StartDatetime == nil || req.EndDatetime == nil {
		respondError(w, r, apperr.Validation("startDatetime and endDatetime are required"))
		return
	}

	st, err := h.statements.Create(r.Context(), orgID, chi.URLParam(r, "ledgerID"), chi.URLParam(r, "accountID"),
		*req.StartDatetime, *req.EndDatetime)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toStatementResponse(st), http.StatusCreated)
}

// Get handles GET /api/ledgers/{ledgerID}/accounts/{accountID}/statements/{statementID}
func (h *StatementHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, err := organizationID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	st, err := h.statements.Get(r.Context(), orgID, chi.URLParam(r, "statementID"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, toStatementResponse(st), http.StatusOK)
}

// List handles GET /api/ledgers/{ledgerID}/accounts/{accountID}/statements
func (h *StatementHandler) List(w http.ResponseWriter, r *http.Request) {
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

	statements, err := h.statements.List(r.Context(), orgID, chi.URLParam(r, "ledgerID"), chi.URLParam(r, "accountID"), limit, offset)
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]StatementResponse, len(statements))
	for i, s := range statements {
		out[i] = toStatementResponse(s)
	}
	respondJSON(w, map[string]any{"statements": out}, http.StatusOK)
}

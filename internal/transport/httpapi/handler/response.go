// Package handler decodes requests, invokes the services and serializes
// responses. Errors leave through the RFC-7807-like envelope; the mapping
// from error kinds to status codes lives here and nowhere else.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
)

// Problem is the error response envelope.
type Problem struct {
	Type      string         `json:"type"`
	Status    int            `json:"status"`
	Title     string         `json:"title"`
	Detail    string         `json:"detail"`
	Instance  string         `json:"instance,omitempty"`
	TraceID   string         `json:"traceId,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// respondError translates err into the envelope. Errors outside the
// taxonomy become opaque 500s; their cause is already logged upstream.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal("internal server error", err)
	}

	status := e.Kind.HTTPStatus()
	respondJSON(w, Problem{
		Type:      string(e.Kind),
		Status:    status,
		Title:     http.StatusText(status),
		Detail:    e.Message,
		Instance:  r.URL.Path,
		TraceID:   chimiddleware.GetReqID(r.Context()),
		Retryable: e.Retryable,
		Context:   e.Context,
	}, status)
}

// decodeJSON decodes the request body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.ValidationErr("invalid request body", err)
	}
	return nil
}

// pagination parses limit and offset query parameters, leaving the
// service-layer defaults in place when absent.
func pagination(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			return 0, 0, apperr.Validation("limit must be a non-negative integer")
		}
	}
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, apperr.Validation("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

package middleware

import (
	"encoding/json"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ledgerkit/ledgerkit/internal/apperr"
)

// writeError serializes the error envelope for requests rejected inside the
// middleware chain, before any handler runs. Handlers carry their own copy
// of this mapping in the handler package.
func writeError(w http.ResponseWriter, r *http.Request, err *apperr.Error) {
	status := err.Kind.HTTPStatus()

	body := map[string]any{
		"type":   string(err.Kind),
		"status": status,
		"title":  http.StatusText(status),
		"detail": err.Message,
	}
	if r != nil {
		body["instance"] = r.URL.Path
		if reqID := chimiddleware.GetReqID(r.Context()); reqID != "" {
			body["traceId"] = reqID
		}
	}
	if err.Retryable {
		body["retryable"] = true
	}
	if len(err.Context) > 0 {
		body["context"] = err.Context
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

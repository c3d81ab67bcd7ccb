// Package handler implements the HTTP surface: per-tenant document,
// interaction, recommendation, and search endpoints, wired over the
// storage/ingestion/recommend/CoI packages through a per-tenant service
// cache.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/connexus-ai/discovery-engine/internal/apierror"
	"github.com/connexus-ai/discovery-engine/internal/reqcontext"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	reqcontext.WriteError(w, r.Context(), apierror.As(err))
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apierror.InvalidRequest("malformed request body", map[string]any{"error": err.Error()})
	}
	return nil
}

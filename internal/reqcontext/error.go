package reqcontext

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/connexus-ai/discovery-engine/internal/apierror"
)

// errorEnvelope is the wire shape of spec.md §6's error response:
// {kind, request_id, details}.
type errorEnvelope struct {
	Kind      string         `json:"kind"`
	RequestID string         `json:"request_id"`
	Details   map[string]any `json:"details,omitempty"`
}

// WriteError renders an *apierror.APIError as the JSON error envelope,
// logging InternalServerError responses with the request id.
func WriteError(w http.ResponseWriter, ctx context.Context, err *apierror.APIError) {
	err.RequestID = RequestIDFromContext(ctx)

	if err.Kind == apierror.KindInternalServerError {
		slog.Error("internal server error", "request_id", err.RequestID, "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus())
	json.NewEncoder(w).Encode(errorEnvelope{
		Kind:      string(err.Kind),
		RequestID: err.RequestID,
		Details:   err.Details,
	})
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/discovery-engine/internal/apierror"
	"github.com/connexus-ai/discovery-engine/internal/model"
)

type interactionTargetWire struct {
	ID string `json:"id"`
}

type appendInteractionsRequest struct {
	Documents []interactionTargetWire `json:"documents"`
}

// AppendInteractions handles PATCH /users/{user_id}/interactions. A bare
// document id resolves to snippet index 0.
func (d *Dependencies) AppendInteractions(w http.ResponseWriter, r *http.Request) {
	userID := model.UserID(chi.URLParam(r, "user_id"))
	if !userID.Valid() {
		respondError(w, r, apierror.InvalidRequest("invalid user id", nil))
		return
	}

	var req appendInteractionsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	targets := make([]model.SnippetID, len(req.Documents))
	for i, t := range req.Documents {
		targets[i] = model.SnippetID{DocumentID: model.DocumentID(t.ID), Index: 0}
	}

	backends := backendsFromContext(r.Context())
	services := d.servicesFor(backends)
	state, err := services.interaction.Append(r.Context(), userID, targets)
	if err != nil {
		respondError(w, r, err)
		return
	}
	d.Metrics.RecordCoIStateTransition(string(state))

	d.Cache.InvalidateUser(r.Context(), backends.Tenant.ID.String(), string(userID))
	w.WriteHeader(http.StatusNoContent)
}

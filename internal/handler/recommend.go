package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/discovery-engine/internal/apierror"
	"github.com/connexus-ai/discovery-engine/internal/model"
	"github.com/connexus-ai/discovery-engine/internal/recommend"
)

type rankedDocumentWire struct {
	ID         string                     `json:"id"`
	Snippet    string                     `json:"snippet"`
	Properties map[string]json.RawMessage `json:"properties,omitempty"`
	Score      float64                    `json:"score"`
}

type documentsResponse struct {
	Documents []rankedDocumentWire `json:"documents"`
}

// cacheQueryKey derives a stable cache-query string from a decoded
// request body, so that repeated identical requests share one cache
// entry regardless of field ordering in the incoming JSON.
func cacheQueryKey(body any) string {
	raw, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return string(raw)
}

func toResponse(ranked []recommend.RankedDocument, includeProperties bool) documentsResponse {
	out := make([]rankedDocumentWire, len(ranked))
	for i, r := range ranked {
		w := rankedDocumentWire{ID: string(r.Document.ID), Snippet: r.Document.Snippet, Score: r.FinalScore}
		if includeProperties {
			w.Properties = r.Document.Properties
		}
		out[i] = w
	}
	return documentsResponse{Documents: out}
}

type recommendRequest struct {
	Count             int             `json:"count,omitempty"`
	PublishedAfter    *time.Time      `json:"published_after,omitempty"`
	Filter            json.RawMessage `json:"filter,omitempty"`
	IncludeProperties bool            `json:"include_properties,omitempty"`
	Strict            bool            `json:"strict,omitempty"`
}

// Recommend handles POST /users/{user_id}/recommendations.
func (d *Dependencies) Recommend(w http.ResponseWriter, r *http.Request) {
	userID := model.UserID(chi.URLParam(r, "user_id"))
	if !userID.Valid() {
		respondError(w, r, apierror.InvalidRequest("invalid user id", nil))
		return
	}

	var body recommendRequest
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, r, err)
		return
	}
	filter, err := decodeFilter(body.Filter)
	if err != nil {
		respondError(w, r, err)
		return
	}

	count := body.Count
	backends := backendsFromContext(r.Context())
	services := d.servicesFor(backends)
	if count <= 0 {
		count = d.Cfg.Personalization.DefaultDocumentsCount
	}

	tenantID := backends.Tenant.ID.String()
	cacheQuery := cacheQueryKey(body)
	if cached, ok := d.Cache.Get(r.Context(), tenantID, string(userID), cacheQuery, 0); ok {
		respondJSON(w, http.StatusOK, toResponse(cached, body.IncludeProperties))
		return
	}

	ranked, err := services.recommend.Recommend(r.Context(), userID, recommend.Request{
		Page:           0,
		PageSize:       count,
		Filter:         filter,
		PublishedAfter: body.PublishedAfter,
		ExcludeHistory: true,
		Strict:         body.Strict,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	d.Cache.Set(r.Context(), tenantID, string(userID), cacheQuery, 0, ranked)
	respondJSON(w, http.StatusOK, toResponse(ranked, body.IncludeProperties))
}

type searchDocumentRef struct {
	ID     string    `json:"id,omitempty"`
	Query  string    `json:"query,omitempty"`
	Vector []float32 `json:"vector,omitempty"`
}

type semanticSearchRequest struct {
	Document      *searchDocumentRef `json:"document,omitempty"`
	Count         int                `json:"count,omitempty"`
	Filter        json.RawMessage    `json:"filter,omitempty"`
	MinSimilarity float64            `json:"min_similarity,omitempty"`
}

// SemanticSearch handles POST /semantic_search. The document field may
// carry a bare document id (whose stored embedding seeds the kNN probe)
// or an inline {query, vector?} pair.
func (d *Dependencies) SemanticSearch(w http.ResponseWriter, r *http.Request) {
	var body semanticSearchRequest
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, r, err)
		return
	}
	filter, err := decodeFilter(body.Filter)
	if err != nil {
		respondError(w, r, err)
		return
	}

	backends := backendsFromContext(r.Context())
	services := d.servicesFor(backends)

	tenantID := backends.Tenant.ID.String()
	cacheQuery := cacheQueryKey(body)
	if cached, ok := d.Cache.Get(r.Context(), tenantID, "", cacheQuery, 0); ok {
		respondJSON(w, http.StatusOK, toResponse(cached, true))
		return
	}

	req := recommend.Request{
		Page:          0,
		PageSize:      body.Count,
		Filter:        filter,
		MinSimilarity: body.MinSimilarity,
	}
	if req.PageSize <= 0 {
		req.PageSize = d.Cfg.Personalization.DefaultDocumentsCount
	}

	if body.Document != nil {
		switch {
		case body.Document.Vector != nil:
			req.QueryVector = body.Document.Vector
		case body.Document.Query != "":
			req.QueryText = body.Document.Query
		case body.Document.ID != "":
			doc, err := backends.Index.Get(r.Context(), model.DocumentID(body.Document.ID))
			if err != nil {
				respondError(w, r, apierror.Upstream("vector index unavailable", err))
				return
			}
			if doc == nil {
				respondError(w, r, apierror.DocumentNotFound(body.Document.ID))
				return
			}
			req.QueryVector = doc.Embedding
		}
	}

	ranked, err := services.recommend.SemanticSearch(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	d.Cache.Set(r.Context(), tenantID, "", cacheQuery, 0, ranked)
	respondJSON(w, http.StatusOK, toResponse(ranked, true))
}

type historyEntryWire struct {
	ID        string     `json:"id"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type personalizeStatelessRequest struct {
	History        []historyEntryWire `json:"history"`
	Count          int                `json:"count,omitempty"`
	PublishedAfter *time.Time         `json:"published_after,omitempty"`
	Filter         json.RawMessage    `json:"filter,omitempty"`
}

// PersonalizeStateless handles POST /personalized_documents: history is
// supplied inline and no persistent profile is touched.
func (d *Dependencies) PersonalizeStateless(w http.ResponseWriter, r *http.Request) {
	var body personalizeStatelessRequest
	if err := decodeJSON(r, &body); err != nil {
		respondError(w, r, err)
		return
	}
	filter, err := decodeFilter(body.Filter)
	if err != nil {
		respondError(w, r, err)
		return
	}

	history := make([]model.UserHistoryEntry, len(body.History))
	for i, h := range body.History {
		entry := model.UserHistoryEntry{DocumentID: model.DocumentID(h.ID)}
		if h.Timestamp != nil {
			entry.ShownAt = *h.Timestamp
		}
		history[i] = entry
	}

	count := body.Count
	if count <= 0 {
		count = d.Cfg.Personalization.DefaultDocumentsCount
	}

	backends := backendsFromContext(r.Context())
	services := d.servicesFor(backends)

	tenantID := backends.Tenant.ID.String()
	cacheQuery := cacheQueryKey(body)
	if cached, ok := d.Cache.Get(r.Context(), tenantID, "", cacheQuery, 0); ok {
		respondJSON(w, http.StatusOK, toResponse(cached, true))
		return
	}

	ranked, err := services.recommend.PersonalizeStateless(r.Context(), recommend.Request{
		Page:           0,
		PageSize:       count,
		Filter:         filter,
		PublishedAfter: body.PublishedAfter,
		ExcludeHistory: true,
		InlineHistory:  history,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	d.Cache.Set(r.Context(), tenantID, "", cacheQuery, 0, ranked)
	respondJSON(w, http.StatusOK, toResponse(ranked, true))
}

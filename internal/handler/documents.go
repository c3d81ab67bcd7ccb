package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/discovery-engine/internal/apierror"
	"github.com/connexus-ai/discovery-engine/internal/model"
)

type documentWire struct {
	ID                string                     `json:"id"`
	Snippet           string                     `json:"snippet"`
	Properties        map[string]json.RawMessage `json:"properties,omitempty"`
	PreprocessingStep string                     `json:"preprocessing_step,omitempty"`
	PublicationDate   *time.Time                 `json:"publication_date,omitempty"`
}

func (w documentWire) toModel() model.Document {
	step := model.PreprocessNone
	if w.PreprocessingStep != "" {
		step = model.PreprocessingStep(w.PreprocessingStep)
	}
	return model.Document{
		ID:                model.DocumentID(w.ID),
		Snippet:           w.Snippet,
		Properties:        w.Properties,
		PreprocessingStep: step,
		PublicationDate:   w.PublicationDate,
	}
}

type ingestRequest struct {
	Documents []documentWire `json:"documents"`
}

type ingestResultWire struct {
	DocumentID string `json:"document_id"`
	OK         bool   `json:"ok"`
	ErrorKind  string `json:"error_kind,omitempty"`
	ErrorMsg   string `json:"error_message,omitempty"`
}

type ingestResponse struct {
	Documents []ingestResultWire `json:"documents"`
}

// IngestDocuments handles POST /documents.
func (d *Dependencies) IngestDocuments(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	docs := make([]model.Document, len(req.Documents))
	for i, dw := range req.Documents {
		docs[i] = dw.toModel()
	}

	services := d.servicesFor(backendsFromContext(r.Context()))
	outcomes := services.pipeline.IngestBatch(r.Context(), docs)

	results := make([]ingestResultWire, len(outcomes))
	anyFailed := false
	for i, o := range outcomes {
		results[i] = ingestResultWire{DocumentID: string(o.DocumentID), OK: o.OK, ErrorKind: o.ErrorKind, ErrorMsg: o.ErrorMsg}
		if !o.OK {
			anyFailed = true
		}
	}

	status := http.StatusCreated
	if anyFailed {
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, ingestResponse{Documents: results})
}

// DeleteDocument handles DELETE /documents/{id}.
func (d *Dependencies) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := model.DocumentID(chi.URLParam(r, "id"))
	if !id.Valid() {
		respondError(w, r, apierror.InvalidRequest("invalid document id", nil))
		return
	}

	services := d.servicesFor(backendsFromContext(r.Context()))
	if err := services.pipeline.Delete(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type documentResponse struct {
	ID              string                     `json:"id"`
	Snippet         string                     `json:"snippet"`
	Properties      map[string]json.RawMessage `json:"properties,omitempty"`
	PublicationDate *time.Time                 `json:"publication_date,omitempty"`
}

// GetDocument handles GET /documents/{id}.
func (d *Dependencies) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := model.DocumentID(chi.URLParam(r, "id"))
	if !id.Valid() {
		respondError(w, r, apierror.InvalidRequest("invalid document id", nil))
		return
	}

	backends := backendsFromContext(r.Context())
	doc, err := backends.Index.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, apierror.Upstream("vector index unavailable", err))
		return
	}
	if doc == nil {
		respondError(w, r, apierror.DocumentNotFound(string(id)))
		return
	}

	respondJSON(w, http.StatusOK, documentResponse{
		ID:              string(doc.ID),
		Snippet:         doc.Snippet,
		Properties:      doc.Properties,
		PublicationDate: doc.PublicationDate,
	})
}

// Package ingestion implements the validate → preprocess → embed →
// upsert pipeline, batched with per-document outcome reporting and no
// abort-on-first-error, following the teacher's step-by-step logged
// pipeline shape.
package ingestion

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/connexus-ai/discovery-engine/internal/apierror"
	"github.com/connexus-ai/discovery-engine/internal/coi"
	"github.com/connexus-ai/discovery-engine/internal/config"
	"github.com/connexus-ai/discovery-engine/internal/embedder"
	"github.com/connexus-ai/discovery-engine/internal/esindex"
	"github.com/connexus-ai/discovery-engine/internal/model"
	"github.com/connexus-ai/discovery-engine/internal/pgstore"
)

// maxConcurrentIngests bounds how many documents in one batch are
// embedded and upserted at the same time.
const maxConcurrentIngests = 8

// Embedder is the subset of embedder.Embedder the pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Pipeline ingests batches of documents into one tenant's backends.
type Pipeline struct {
	index      *esindex.Client
	repo       *pgstore.Repository
	embedder   Embedder
	summarizer embedder.Summarizer
	extractor  embedder.SnippetExtractor
	cfg        config.IngestionConfig

	// processingMu guards per-id in-flight tracking so a reconciliation
	// sweep never races a concurrent re-ingest of the same document.
	processingMu sync.Mutex
	processing   map[model.DocumentID]bool
}

// New builds a Pipeline. extractor splits a snippet into the
// independently addressable chunks spec.md §3 allows; a nil extractor
// falls back to embedder.PassThroughExtractor (the whole snippet as one
// chunk).
func New(index *esindex.Client, repo *pgstore.Repository, emb Embedder, summarizer embedder.Summarizer, extractor embedder.SnippetExtractor, cfg config.IngestionConfig) *Pipeline {
	if extractor == nil {
		extractor = embedder.PassThroughExtractor{}
	}
	return &Pipeline{
		index:      index,
		repo:       repo,
		embedder:   emb,
		summarizer: summarizer,
		extractor:  extractor,
		cfg:        cfg,
		processing: make(map[model.DocumentID]bool),
	}
}

// IngestBatch processes up to max_document_batch_size documents
// independently, never aborting on the first failure.
func (p *Pipeline) IngestBatch(ctx context.Context, docs []model.Document) []model.IngestOutcome {
	if len(docs) > p.cfg.MaxDocumentBatchSize {
		docs = docs[:p.cfg.MaxDocumentBatchSize]
	}

	outcomes := make([]model.IngestOutcome, len(docs))

	// Each document is embedded and upserted independently; a failure
	// never aborts the rest of the batch, so errgroup is used purely
	// for bounded concurrency, not error propagation.
	var g errgroup.Group
	g.SetLimit(maxConcurrentIngests)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			outcomes[i] = p.ingestOne(ctx, doc)
			return nil
		})
	}
	g.Wait()
	return outcomes
}

func (p *Pipeline) ingestOne(ctx context.Context, doc model.Document) model.IngestOutcome {
	logger := slog.With("document_id", string(doc.ID))

	if err := p.validate(doc); err != nil {
		logger.Warn("ingestion: validation failed", "error", err)
		return fail(doc.ID, err)
	}

	p.markProcessing(doc.ID)
	defer p.unmarkProcessing(doc.ID)

	// The extractor may split the snippet into several independently
	// addressable chunks (spec.md §3); the first chunk is the
	// representative text embedded and indexed for this document, the
	// original snippet is kept in full for keyword search.
	textToEmbed := doc.Snippet
	if chunks := p.extractor.Extract(doc.Snippet); len(chunks) > 0 {
		textToEmbed = chunks[0]
	}

	if doc.PreprocessingStep == model.PreprocessSummarize {
		summary, err := p.summarizer.Summarize(ctx, textToEmbed)
		if err != nil {
			logger.Error("ingestion: summarize failed", "error", err)
			return fail(doc.ID, apierror.Upstream("summarizer failed", err))
		}
		textToEmbed = summary
	}

	vectors, err := p.embedder.Embed(ctx, []string{textToEmbed})
	if err != nil {
		logger.Error("ingestion: embed failed", "error", err)
		return fail(doc.ID, apierror.Upstream("embedder failed", err))
	}
	if len(vectors) == 0 {
		return fail(doc.ID, apierror.InvalidRequest("embedder returned no vector", nil))
	}

	embedding := vectors[0]
	if !coi.FiniteVector(embedding) || model.ZeroVector(embedding) {
		return fail(doc.ID, apierror.InvalidRequest("embedding is non-finite or zero", nil))
	}
	doc.Embedding = unitNormalize(embedding)

	logger.Info("ingestion: writing vector index")
	if err := p.index.Upsert(ctx, doc); err != nil {
		logger.Error("ingestion: index upsert failed", "error", err)
		return fail(doc.ID, apierror.Upstream("vector index unavailable", err))
	}

	logger.Info("ingestion: writing relational row")
	if err := p.repo.UpsertDocumentMetadata(ctx, doc); err != nil {
		logger.Error("ingestion: relational upsert failed", "error", err)
		return fail(doc.ID, apierror.Upstream("relational store unavailable", err))
	}

	return model.IngestOutcome{DocumentID: doc.ID, OK: true}
}

func (p *Pipeline) validate(doc model.Document) error {
	if !doc.ID.Valid() {
		return apierror.InvalidRequest("invalid document id", map[string]any{"document_id": string(doc.ID)})
	}
	if len(doc.Snippet) > p.cfg.MaxSnippetSize {
		return apierror.InvalidRequest("snippet exceeds max_snippet_size", map[string]any{"document_id": string(doc.ID)})
	}
	// One slot of MaxIndexedProperties is reserved for publication_date,
	// which is always indexed alongside a document's own properties.
	if len(doc.Properties) > p.cfg.MaxIndexedProperties-1 {
		return apierror.InvalidRequest("too many indexed properties", map[string]any{"document_id": string(doc.ID)})
	}
	var total int
	for k, v := range doc.Properties {
		total += len(k) + len(v)
		if len(v) > p.cfg.MaxPropertiesStringSize {
			return apierror.InvalidRequest("property value too large", map[string]any{"document_id": string(doc.ID), "property": k})
		}
	}
	if total > p.cfg.MaxPropertiesSize {
		return apierror.InvalidRequest("serialized properties exceed max_properties_size", map[string]any{"document_id": string(doc.ID)})
	}
	return nil
}

func (p *Pipeline) markProcessing(id model.DocumentID) {
	p.processingMu.Lock()
	defer p.processingMu.Unlock()
	p.processing[id] = true
}

func (p *Pipeline) unmarkProcessing(id model.DocumentID) {
	p.processingMu.Lock()
	defer p.processingMu.Unlock()
	delete(p.processing, id)
}

func fail(id model.DocumentID, err error) model.IngestOutcome {
	ae := apierror.As(err)
	return model.IngestOutcome{DocumentID: id, OK: false, ErrorKind: string(ae.Kind), ErrorMsg: ae.Message}
}

// Delete removes a document from both backends; idempotent.
func (p *Pipeline) Delete(ctx context.Context, id model.DocumentID) error {
	if err := p.index.Delete(ctx, id); err != nil {
		return apierror.Upstream("vector index unavailable", err)
	}
	if err := p.repo.DeleteDocumentMetadata(ctx, id); err != nil {
		return apierror.Upstream("relational store unavailable", err)
	}
	return nil
}

// Reconcile deletes index entries for ids that have no matching
// relational row, reclaiming space left by a partial ingest failure.
func (p *Pipeline) Reconcile(ctx context.Context, candidateIDs []model.DocumentID) error {
	existing, err := p.repo.ExistingDocumentIDs(ctx, candidateIDs)
	if err != nil {
		return apierror.Upstream("relational store unavailable", err)
	}
	for _, id := range candidateIDs {
		p.processingMu.Lock()
		inFlight := p.processing[id]
		p.processingMu.Unlock()
		if inFlight || existing[id] {
			continue
		}
		if err := p.index.Delete(ctx, id); err != nil {
			return apierror.Upstream("vector index unavailable", err)
		}
	}
	return nil
}

func unitNormalize(v []float32) []float32 {
	var normSq float64
	for _, c := range v {
		normSq += float64(c) * float64(c)
	}
	if normSq == 0 {
		return v
	}
	norm := math.Sqrt(normSq)
	out := make([]float32, len(v))
	for i, c := range v {
		out[i] = float32(float64(c) / norm)
	}
	return out
}

package handler

import (
	"sync"

	"github.com/connexus-ai/discovery-engine/internal/cache"
	"github.com/connexus-ai/discovery-engine/internal/coi"
	"github.com/connexus-ai/discovery-engine/internal/config"
	"github.com/connexus-ai/discovery-engine/internal/embedder"
	"github.com/connexus-ai/discovery-engine/internal/ingestion"
	"github.com/connexus-ai/discovery-engine/internal/interaction"
	appmiddleware "github.com/connexus-ai/discovery-engine/internal/middleware"
	"github.com/connexus-ai/discovery-engine/internal/pgstore"
	"github.com/connexus-ai/discovery-engine/internal/recommend"
	"github.com/connexus-ai/discovery-engine/internal/tenantrouter"
)

// TextEmbedder is the full embedder surface the handler layer needs:
// batch embedding for ingestion plus single-text embedding for
// query-time retrieval.
type TextEmbedder interface {
	ingestion.Embedder
	recommend.QueryEmbedder
}

// Dependencies bundles the process-wide collaborators every handler
// needs. Per-tenant collaborators (repository, pipeline, recommend and
// interaction services) are built lazily from a resolved
// tenantrouter.Backends and cached in tenantServices.
type Dependencies struct {
	Tenants    *tenantrouter.Router
	Embedder   TextEmbedder
	Summarizer embedder.Summarizer
	Extractor  embedder.SnippetExtractor
	CoI        *coi.Engine
	Cfg        *config.Config
	Cache      *cache.ResultCache
	Metrics    *appmiddleware.Metrics

	userLocks *coi.UserLocks
	services  sync.Map // model.TenantID -> *tenantServices
}

// tenantServices is the set of collaborators scoped to one tenant's
// backends, built once per tenant and reused across requests.
type tenantServices struct {
	repo        *pgstore.Repository
	pipeline    *ingestion.Pipeline
	interaction *interaction.Service
	recommend   *recommend.Service
}

// NewDependencies wires the process-wide collaborators. userLockShards
// sizes the sharded per-user mutex shared by every tenant's interaction
// service.
func NewDependencies(tenants *tenantrouter.Router, emb TextEmbedder, summarizer embedder.Summarizer, extractor embedder.SnippetExtractor, engine *coi.Engine, cfg *config.Config, resultCache *cache.ResultCache, metrics *appmiddleware.Metrics, userLockShards int) *Dependencies {
	return &Dependencies{
		Tenants:    tenants,
		Embedder:   emb,
		Summarizer: summarizer,
		Extractor:  extractor,
		CoI:        engine,
		Cfg:        cfg,
		Cache:      resultCache,
		Metrics:    metrics,
		userLocks:  coi.NewUserLocks(userLockShards),
	}
}

// servicesFor returns the cached tenantServices for b, building them on
// first use.
func (d *Dependencies) servicesFor(b *tenantrouter.Backends) *tenantServices {
	if v, ok := d.services.Load(b.Tenant.ID); ok {
		return v.(*tenantServices)
	}

	repo := pgstore.NewRepository(b.Pool, b.Tenant.SchemaName)
	pipeline := ingestion.New(b.Index, repo, d.Embedder, d.Summarizer, d.Extractor, d.Cfg.Ingestion)
	interactionSvc := interaction.New(repo, b.Index, d.CoI, d.Cfg.Personalization, d.userLocks)
	recommendSvc := recommend.New(b.Index, repo, d.Embedder, d.CoI, d.Cfg.Personalization, recommend.DefaultWeights,
		d.Cfg.Personalization.OverfetchFactor, d.Cfg.Personalization.MaxPageSize)

	services := &tenantServices{repo: repo, pipeline: pipeline, interaction: interactionSvc, recommend: recommendSvc}
	actual, _ := d.services.LoadOrStore(b.Tenant.ID, services)
	return actual.(*tenantServices)
}

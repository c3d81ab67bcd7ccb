// Package tenantrouter resolves an incoming TenantId to its isolated
// backends, auto-provisioning a relational schema and a vector index on
// first sight of an unknown tenant.
package tenantrouter

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/discovery-engine/internal/esindex"
	"github.com/connexus-ai/discovery-engine/internal/model"
	"github.com/connexus-ai/discovery-engine/internal/pgstore"
)

// Backends bundles the two isolated resources a tenant owns.
type Backends struct {
	Tenant model.Tenant
	Pool   *pgxpool.Pool
	Index  *esindex.Client
}

// Router resolves tenant ids to Backends, caching the result in a
// process-wide registry so repeated requests reuse connections.
type Router struct {
	pool           *pgxpool.Pool
	esFactory      func(indexName string) (*esindex.Client, error)
	indexPrefix    string
	enableLegacy   bool
	legacyTenantID model.TenantID

	cache sync.Map // model.TenantID -> *Backends
}

// New builds a Router over a single shared pgxpool.Pool (tenant
// isolation is by schema, not by connection) and a factory that builds
// an Elasticsearch client scoped to one tenant's index.
func New(pool *pgxpool.Pool, esFactory func(indexName string) (*esindex.Client, error), indexPrefix string, enableLegacy bool, legacyTenantID model.TenantID) *Router {
	return &Router{
		pool:           pool,
		esFactory:      esFactory,
		indexPrefix:    indexPrefix,
		enableLegacy:   enableLegacy,
		legacyTenantID: legacyTenantID,
	}
}

// ErrNoTenant is returned when no tenant header was supplied and legacy
// fallback is disabled.
type ErrNoTenant struct{}

func (ErrNoTenant) Error() string { return "tenantrouter: no tenant id and legacy tenant disabled" }

// Resolve maps a (possibly empty) tenant id header value to Backends,
// provisioning the schema and index on first use.
func (r *Router) Resolve(ctx context.Context, rawID string) (*Backends, error) {
	id := model.TenantID(rawID)
	if id == "" {
		if !r.enableLegacy {
			return nil, ErrNoTenant{}
		}
		id = r.legacyTenantID
	}
	if !id.Valid() {
		return nil, fmt.Errorf("tenantrouter: invalid tenant id %q", rawID)
	}

	if v, ok := r.cache.Load(id); ok {
		return v.(*Backends), nil
	}

	backends, err := r.provision(ctx, id)
	if err != nil {
		return nil, err
	}

	actual, _ := r.cache.LoadOrStore(id, backends)
	return actual.(*Backends), nil
}

func (r *Router) provision(ctx context.Context, id model.TenantID) (*Backends, error) {
	schemaName := model.SchemaNameFor(id)
	indexName := model.IndexNameFor(r.indexPrefix, id)

	if err := pgstore.EnsureTenantSchema(ctx, r.pool, schemaName); err != nil {
		return nil, fmt.Errorf("tenantrouter: provisioning schema for %s: %w", id, err)
	}

	idx, err := r.esFactory(indexName)
	if err != nil {
		return nil, fmt.Errorf("tenantrouter: provisioning index for %s: %w", id, err)
	}
	if err := idx.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("tenantrouter: ensuring index %s: %w", indexName, err)
	}

	return &Backends{
		Tenant: model.Tenant{ID: id, SchemaName: schemaName, EsIndexName: indexName},
		Pool:   r.pool,
		Index:  idx,
	}, nil
}

package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/connexus-ai/discovery-engine/internal/apierror"
	"github.com/connexus-ai/discovery-engine/internal/model"
	"github.com/connexus-ai/discovery-engine/internal/reqcontext"
	"github.com/connexus-ai/discovery-engine/internal/tenantrouter"
)

type backendsKey struct{}

// backendsFromContext retrieves the tenant backends attached by
// WithTenant.
func backendsFromContext(ctx context.Context) *tenantrouter.Backends {
	b, _ := ctx.Value(backendsKey{}).(*tenantrouter.Backends)
	return b
}

// WithTenant resolves the X-Xayn-Tenant-Id header to its backends,
// auto-provisioning on first sight, and attaches both the backends and
// the resolved tenant id to the request context. A missing tenant id
// with no legacy fallback configured fails the request with 500, per the
// header contract; a tenant id that fails lexical validation fails with
// InvalidRequest (400); any other resolution failure is Upstream.
func (d *Dependencies) WithTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawID := r.Header.Get(reqcontext.TenantHeader)
		if rawID != "" && !model.TenantID(rawID).Valid() {
			respondError(w, r, apierror.InvalidRequest("invalid tenant id", nil))
			return
		}

		backends, err := d.Tenants.Resolve(r.Context(), rawID)
		if err != nil {
			var noTenant tenantrouter.ErrNoTenant
			if errors.As(err, &noTenant) {
				respondError(w, r, apierror.Internal("no tenant id supplied and legacy tenant disabled", err))
				return
			}
			respondError(w, r, apierror.Upstream("tenant provisioning failed", err))
			return
		}

		ctx := reqcontext.WithTenantID(r.Context(), backends.Tenant.ID)
		ctx = context.WithValue(ctx, backendsKey{}, backends)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

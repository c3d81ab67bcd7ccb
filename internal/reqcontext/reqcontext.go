// Package reqcontext carries request id and tenant id through a
// request's context, attached at entry and propagated through every
// suspension point, per spec.md §5's per-request context requirement.
package reqcontext

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/connexus-ai/discovery-engine/internal/model"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	tenantIDKey  contextKey = "tenant_id"
)

// TenantHeader is the header spec.md §6 names for tenant selection.
const TenantHeader = "X-Xayn-Tenant-Id"

// RequestIDFromContext retrieves the request id attached by Middleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// TenantIDFromContext retrieves the tenant id attached by WithTenantID.
func TenantIDFromContext(ctx context.Context) model.TenantID {
	id, _ := ctx.Value(tenantIDKey).(model.TenantID)
	return id
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// WithTenantID attaches a resolved tenant id to ctx, for handlers and
// logging downstream of tenant resolution. Tenant resolution itself
// lives in the handler package, since it also needs the resolved
// backends (pool, index), not just the id.
func WithTenantID(ctx context.Context, id model.TenantID) context.Context {
	return context.WithValue(ctx, tenantIDKey, id)
}

// Middleware attaches a request id (generated if absent) and echoes it
// back in the response header. Tenant resolution happens downstream,
// since it requires the tenant router (which may fail and must surface
// as a typed error, not a header-parsing detail).
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := withRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func generateRequestID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Package router assembles the chi mux: global middleware, tenant
// resolution, and the seven public endpoints.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/connexus-ai/discovery-engine/internal/handler"
	appmiddleware "github.com/connexus-ai/discovery-engine/internal/middleware"
	"github.com/connexus-ai/discovery-engine/internal/reqcontext"
)

const requestTimeout = 30 * time.Second

// New builds the full mux over deps, with rate limiting keyed per
// tenant. maxBodySize caps every request body per net.max_body_size
// (0 disables the cap). deps.Metrics is reused for the Monitoring
// middleware so request metrics and the CoI-transition counter share
// one registration.
func New(deps *handler.Dependencies, registry *prometheus.Registry, rateLimiter *appmiddleware.RateLimiter, maxBodySize int64) *chi.Mux {
	r := chi.NewRouter()

	r.Use(appmiddleware.SecurityHeaders)
	r.Use(appmiddleware.MaxBodySize(maxBodySize))
	r.Use(reqcontext.Middleware)
	r.Use(appmiddleware.Logging)
	r.Use(appmiddleware.Monitoring(deps.Metrics))

	r.Get("/healthz", handler.Healthz)
	r.Handle("/metrics", appmiddleware.MetricsHandler(registry))

	r.Group(func(r chi.Router) {
		r.Use(deps.WithTenant)
		r.Use(appmiddleware.RateLimit(rateLimiter))

		r.Use(appmiddleware.Timeout(requestTimeout))

		r.Post("/documents", deps.IngestDocuments)
		r.Delete("/documents/{id}", deps.DeleteDocument)
		r.Get("/documents/{id}", deps.GetDocument)
		r.Patch("/users/{user_id}/interactions", deps.AppendInteractions)
		r.Post("/users/{user_id}/recommendations", deps.Recommend)
		r.Post("/semantic_search", deps.SemanticSearch)
		r.Post("/personalized_documents", deps.PersonalizeStateless)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"kind":"InvalidRequest","request_id":"","details":{"error":"route not found"}}`))
	})

	return r
}

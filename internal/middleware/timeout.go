package middleware

import (
	"net/http"
	"time"
)

// Timeout wraps the tenant-scoped routes with an http.TimeoutHandler,
// enforcing the per-request upper bound spec.md §5 requires on every
// outbound suspension point.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"kind":"Upstream","request_id":"","details":{"error":"request timeout"}}`)
	}
}

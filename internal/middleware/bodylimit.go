package middleware

import "net/http"

// MaxBodySize caps the request body at n bytes, grounded on the
// teacher's transcribe handler's http.MaxBytesReader guard, generalized
// from one upload endpoint to every route via net.max_body_size.
func MaxBodySize(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

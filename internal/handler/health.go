package handler

import "net/http"

// Healthz is a liveness probe independent of tenant resolution.
func Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

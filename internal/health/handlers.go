package health

import (
	"encoding/json"
	"net/http"
	"time"
)

// Handler exposes HTTP handlers for the liveness probe and the service
// metadata blob on the root path.
type Handler struct {
	Service string
	Version string
	Env     string
}

// Health reports liveness status.
func (h Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// Info describes the service and its endpoints.
func (h Handler) Info(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"service":   h.Service,
		"status":    "running",
		"version":   h.Version,
		"env":       h.Env,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"endpoints": map[string]string{
			"health":   "/health",
			"redirect": "/redirect/{trackId}",
			"callback": "/api/zibal/callback",
			"metrics":  "/metrics",
		},
	})
}

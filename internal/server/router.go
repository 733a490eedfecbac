package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loraworks/ttn-export/internal/handlers"
	"github.com/loraworks/ttn-export/internal/middleware"
)

// NewRouter constructs a ServeMux with the export API routes registered.
func NewRouter(h *handlers.ExportHandler) http.Handler {
	mux := http.NewServeMux()

	// Pipeline endpoints
	mux.HandleFunc("/api/v1/process", h.HandleProcess)
	mux.HandleFunc("/api/v1/dedup", h.HandleDedup)
	mux.HandleFunc("/api/v1/fetch", h.HandleFetch)
	mux.HandleFunc("/api/v1/runs", h.HandleRuns)

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}

package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter creates and configures the HTTP router
func SetupRouter(handler *Handler) chi.Router {
	r := chi.NewRouter()

	// Register routes
	handler.RegisterRoutes(r)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

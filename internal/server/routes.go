// Package server wires HTTP handlers into a chi router for the side-car.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures the side-car routes: health check, Prometheus
// exposition and the WebSocket gateway.
func SetupRoutes(hub *Hub, cfg Config, gatherer prometheus.Gatherer, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Get("/", HealthHandler(hub))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Method(http.MethodGet, "/ws", NewGateway(hub, cfg, log))
	return r
}

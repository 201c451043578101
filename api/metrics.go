package api

import (
	chiprometheus "github.com/766b/chi-prometheus"
	"github.com/go-chi/chi/v5"
)

// enablePrometheusMetrics enables go-chi prometheus metrics under specified ID.
// If ID empty, the default "gochi_http" is used.
func (a *API) enablePrometheusMetrics(r *chi.Mux, prometheusID string) {
	// Prometheus handler
	if prometheusID == "" {
		prometheusID = "gochi_http"
	}
	r.Use(chiprometheus.NewMiddleware(prometheusID))
}

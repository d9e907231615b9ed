package observability

import (
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// draining flips once shutdown has started: the health endpoint reports
// unhealthy so a load balancer in front of the admin surface stops
// routing to it.
var draining atomic.Bool

// SetDraining marks the process as shutting down; NewAdminMux's /health
// handler reflects this immediately.
func SetDraining(on bool) { draining.Store(on) }

// NewAdminMux returns the narrow admin surface this process exposes:
// liveness/readiness and Prometheus scraping. It mounts no application
// routes — a passive capture pipeline has no inbound request surface of
// its own, only this small ops-facing mux.
func NewAdminMux() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if draining.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"draining"}` + "\n"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

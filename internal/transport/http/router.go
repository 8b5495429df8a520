// Package httptransport assembles the public HTTP surface. Each module owns
// its handlers and middleware chain; this package only mounts them and adds
// the operational endpoints.
package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gatekeeper/pkg/platform/httputil"
)

// Registrar is implemented by every module handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker reports readiness of one backing dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthFunc adapts a plain function to HealthChecker.
type HealthFunc func(ctx context.Context) error

func (f HealthFunc) Health(ctx context.Context) error { return f(ctx) }

// Deps collects everything the router mounts. Health checkers may be nil
// when a dependency is not configured (e.g. no redis cache).
type Deps struct {
	Evaluation  Registrar
	Application Registrar
	AuditLog    Registrar

	Database HealthChecker
	Cache    HealthChecker
}

const healthTimeout = 2 * time.Second

// NewRouter wires all endpoints: module routes, liveness, readiness, and
// prometheus exposition.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", handleLiveness)
	r.Get("/readyz", handleReadiness(deps))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	deps.Evaluation.Register(r)
	deps.Application.Register(r)
	deps.AuditLog.Register(r)

	return r
}

// handleLiveness only proves the process responds; it touches no
// dependencies so a struggling database never restarts the service.
func handleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleReadiness(deps Deps) http.HandlerFunc {
	checks := map[string]HealthChecker{
		"database": deps.Database,
		"cache":    deps.Cache,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		body := make(map[string]string, len(checks))
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Health(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body[name] = "unavailable"
				continue
			}
			body[name] = "ok"
		}
		httputil.WriteJSON(w, status, body)
	}
}

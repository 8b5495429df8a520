package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apphandler "gatekeeper/internal/application/handler"
	audithandler "gatekeeper/internal/auditlog/handler"
	evalhandler "gatekeeper/internal/evaluation/handler"
)

type nopRegistrar struct{}

func (nopRegistrar) Register(chi.Router) {}

func newDeps() Deps {
	return Deps{
		Evaluation:  nopRegistrar{},
		Application: nopRegistrar{},
		AuditLog:    nopRegistrar{},
	}
}

// All three module handlers register on one shared parent router, so their
// route groups must not collide with each other.
func TestMountsAllModuleHandlers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(Deps{
		Evaluation:  evalhandler.New(nil, logger, nil),
		Application: apphandler.New(nil, logger, nil),
		AuditLog:    audithandler.New(nil, logger, nil),
	})

	// Requests that fail validation before any collaborator is touched;
	// each proves its module's routes are reachable.
	for name, tc := range map[string]struct {
		method string
		target string
		body   string
	}{
		"evaluation":  {http.MethodGet, "/evaluations/not-a-uuid", ""},
		"audit log":   {http.MethodGet, "/evaluations/not-a-uuid/audit", ""},
		"application": {http.MethodPost, "/applications", `{}`},
	} {
		t.Run(name, func(t *testing.T) {
			var body io.Reader
			if tc.body != "" {
				body = strings.NewReader(tc.body)
			}
			req := httptest.NewRequest(tc.method, tc.target, body)
			if tc.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestLiveness(t *testing.T) {
	router := NewRouter(newDeps())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadinessReportsDependencies(t *testing.T) {
	deps := newDeps()
	deps.Database = HealthFunc(func(context.Context) error { return nil })
	deps.Cache = HealthFunc(func(context.Context) error { return errors.New("connection refused") })
	router := NewRouter(deps)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"database":"ok","cache":"unavailable"}`, w.Body.String())
}

func TestReadinessSkipsUnconfiguredDependencies(t *testing.T) {
	deps := newDeps()
	deps.Database = HealthFunc(func(context.Context) error { return nil })
	router := NewRouter(deps)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"database":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	router := NewRouter(newDeps())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.String())
}

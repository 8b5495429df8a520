// Package handler exposes the application registry over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/application/models"
	"gatekeeper/internal/application/service"
	"gatekeeper/internal/platform/metrics"
	"gatekeeper/internal/platform/middleware"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/httputil"
)

const requestTimeout = 10 * time.Second

// Service defines the registry operations the transport needs.
type Service interface {
	CreateApplication(ctx context.Context, cmd service.CreateApplicationCommand) (*models.Application, error)
	GetApplication(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	GetApplicationByName(ctx context.Context, name string) (*models.Application, error)
	AddEnvironment(ctx context.Context, appID id.ApplicationID, spec service.EnvironmentSpec) (*models.Application, error)
	UpdateEnvironment(ctx context.Context, appID id.ApplicationID, spec service.EnvironmentSpec, active bool) (*models.Application, error)
	DeactivateApplication(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	ReactivateApplication(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
}

// Handler handles application registry endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
	metrics *metrics.Metrics
}

// New creates an application Handler.
func New(service Service, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
		metrics: metrics,
	}
}

// Register registers the application routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.Latency(h.metrics))

		r.Post("/applications", h.handleCreate)
		r.Get("/applications/{applicationID}", h.handleGet)
		r.Post("/applications/{applicationID}/environments", h.handleAddEnvironment)
		r.Put("/applications/{applicationID}/environments/{environment}", h.handleUpdateEnvironment)
		r.Post("/applications/{applicationID}/deactivate", h.handleDeactivate)
		r.Post("/applications/{applicationID}/reactivate", h.handleReactivate)
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateApplicationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	cmd, err := req.Command()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	app, err := h.service.CreateApplication(ctx, cmd)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, newApplicationResponse(app))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Admin convenience: the path segment may be a UUID or a name.
	raw := chi.URLParam(r, "applicationID")
	appID, err := id.ParseApplicationID(raw)

	var app *models.Application
	if err == nil {
		app, err = h.service.GetApplication(ctx, appID)
	} else {
		app, err = h.service.GetApplicationByName(ctx, raw)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, newApplicationResponse(app))
}

func (h *Handler) handleAddEnvironment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[EnvironmentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	spec, err := req.Spec()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	app, err := h.service.AddEnvironment(ctx, appID, spec)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, newApplicationResponse(app))
}

func (h *Handler) handleUpdateEnvironment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[EnvironmentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	// The path names the environment; the body may omit it.
	req.Name = chi.URLParam(r, "environment")

	spec, err := req.Spec()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	app, err := h.service.UpdateEnvironment(ctx, appID, spec, active)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, newApplicationResponse(app))
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

func (h *Handler) handleReactivate(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	ctx := r.Context()

	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var app *models.Application
	if active {
		app, err = h.service.ReactivateApplication(ctx, appID)
	} else {
		app, err = h.service.DeactivateApplication(ctx, appID)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, newApplicationResponse(app))
}

// Package handler exposes the read side of the audit trail. Records are
// written only by the evaluation orchestrator; these endpoints exist for
// compliance review.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/auditlog"
	"gatekeeper/internal/platform/metrics"
	"gatekeeper/internal/platform/middleware"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/httputil"
	"gatekeeper/pkg/platform/sentinel"
)

const (
	requestTimeout = 10 * time.Second
	maxListLimit   = 500
)

// Reader is the query subset of the audit log store.
type Reader interface {
	FindByEvaluationID(ctx context.Context, evalID id.EvaluationID) (*auditlog.AuditLog, error)
	ListByApplication(ctx context.Context, appID id.ApplicationID, limit int) ([]*auditlog.AuditLog, error)
}

// Handler handles audit trail query endpoints.
type Handler struct {
	logger  *slog.Logger
	reader  Reader
	metrics *metrics.Metrics
}

// New creates an audit log Handler.
func New(reader Reader, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		logger:  logger,
		reader:  reader,
		metrics: metrics,
	}
}

// Register registers the audit trail routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(middleware.Latency(h.metrics))

		r.Get("/evaluations/{evaluationID}/audit", h.handleGetByEvaluation)
		r.Get("/applications/{applicationID}/audit-logs", h.handleListByApplication)
	})
}

func (h *Handler) handleGetByEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	evalID, err := id.ParseEvaluationID(chi.URLParam(r, "evaluationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.reader.FindByEvaluationID(ctx, evalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "audit record not found"))
			return
		}
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit record"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, newAuditLogResponse(record))
}

func (h *Handler) handleListByApplication(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	appID, err := id.ParseApplicationID(chi.URLParam(r, "applicationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	records, err := h.reader.ListByApplication(ctx, appID, limit)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit records"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, newAuditLogListResponse(records))
}

// parseLimit bounds the page size; 0 lets the store apply its default.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer")
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit, nil
}

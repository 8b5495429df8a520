package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gatekeeper/internal/evaluation"
	"gatekeeper/internal/platform/metrics"
	"gatekeeper/internal/platform/middleware"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/httputil"
)

// requestTimeout bounds one deploy gate request end to end, engine call
// included.
const requestTimeout = 30 * time.Second

// Service defines the evaluation operations the transport needs.
type Service interface {
	Evaluate(ctx context.Context, cmd evaluation.EvaluateCommand) (*evaluation.ComplianceEvaluation, error)
	FindEvaluation(ctx context.Context, evalID id.EvaluationID) (*evaluation.ComplianceEvaluation, error)
}

// Handler handles deploy gate endpoints.
type Handler struct {
	logger  *slog.Logger
	service Service
	metrics *metrics.Metrics
}

// New creates an evaluation Handler.
func New(service Service, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
		metrics: metrics,
	}
}

// Register registers the evaluation routes with the chi router. Routes are
// grouped so the middleware chain stays scoped to this module and several
// modules can share one parent router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.Latency(h.metrics))
		r.Post("/evaluations", h.handleEvaluate)
		r.Get("/evaluations/{evaluationID}", h.handleGetEvaluation)
	})
}

// handleEvaluate runs the deploy gate for one submission.
func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[EvaluateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	eval, err := h.service.Evaluate(ctx, req.Command())
	if err != nil {
		h.logEvaluateFailure(ctx, requestID, req, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, newEvaluateResponse(eval))
}

// handleGetEvaluation returns a persisted evaluation.
func (h *Handler) handleGetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	evalID, err := id.ParseEvaluationID(chi.URLParam(r, "evaluationID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	eval, err := h.service.FindEvaluation(ctx, evalID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, newEvaluateResponse(eval))
}

func (h *Handler) logEvaluateFailure(ctx context.Context, requestID string, req *EvaluateRequest, err error) {
	attrs := []any{
		"request_id", requestID,
		"application_id", req.ApplicationID,
		"environment", req.Environment,
		"error", err.Error(),
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeNotFound, dErrors.CodeValidation, dErrors.CodeBadRequest:
		h.logger.WarnContext(ctx, "evaluation rejected", attrs...)
	default:
		h.logger.ErrorContext(ctx, "evaluation failed", attrs...)
	}
}

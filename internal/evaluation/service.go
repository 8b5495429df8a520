package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gatekeeper/internal/application/models"
	"gatekeeper/internal/auditlog"
	evalmetrics "gatekeeper/internal/evaluation/metrics"
	"gatekeeper/internal/notify"
	"gatekeeper/internal/policy"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/sentinel"
)

const notifyTimeout = 5 * time.Second

// ApplicationDirectory is the read side of the application store the
// orchestrator needs: configuration lookup by identifier.
type ApplicationDirectory interface {
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
}

// StoreTx runs fn inside one storage transaction. Stores that support
// ambient transactions pick it up from the context fn receives, so the
// evaluation and its audit record commit or roll back together.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EvaluateCommand is one deploy gate request after transport decoding.
// RawScans preserves the submitted scan JSON byte for byte for the audit
// evidence.
type EvaluateCommand struct {
	ApplicationID id.ApplicationID
	Environment   string
	Scans         []ScanResult
	RawScans      json.RawMessage
}

// Service orchestrates the deploy gate: configuration lookup, policy
// resolution, engine delegation, atomic persistence, notification. Steps are
// strictly sequential within one request; concurrent requests are independent
// events and are never serialized against each other.
type Service struct {
	apps     ApplicationDirectory
	evals    Store
	audits   auditlog.Store
	engine   Engine
	storeTx  StoreTx
	notifier notify.Notifier

	logger   *slog.Logger
	metrics  *evalmetrics.Metrics
	tracer   trace.Tracer
	failOpen bool
	now      func() time.Time
}

// ServiceOption configures optional service collaborators.
type ServiceOption func(*Service)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics attaches evaluation metrics.
func WithMetrics(m *evalmetrics.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithNotifier attaches a decision notifier.
func WithNotifier(n notify.Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithFailOpen allows deployments when the policy engine cannot be reached.
// Off by default: an unreachable engine blocks the deploy.
func WithFailOpen(failOpen bool) ServiceOption {
	return func(s *Service) {
		s.failOpen = failOpen
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService wires the orchestrator.
func NewService(apps ApplicationDirectory, evals Store, audits auditlog.Store, eng Engine, storeTx StoreTx, opts ...ServiceOption) *Service {
	s := &Service{
		apps:    apps,
		evals:   evals,
		audits:  audits,
		engine:  eng,
		storeTx: storeTx,
		logger:  slog.Default(),
		tracer:  otel.Tracer("gatekeeper/evaluation"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Evaluate runs the full deploy gate pipeline for one request and returns the
// persisted evaluation.
//
// Errors: CodeNotFound when the application or environment is unknown or
// inactive; CodeValidation for empty scan submissions; CodeUnavailable or
// CodeTimeout when the engine cannot be asked and fail-open is off;
// CodeContractViolation when the engine answer breaks the decision contract.
func (s *Service) Evaluate(ctx context.Context, cmd EvaluateCommand) (*ComplianceEvaluation, error) {
	start := s.now()

	ctx, span := s.tracer.Start(ctx, "evaluation.Evaluate",
		trace.WithAttributes(
			attribute.String("application_id", cmd.ApplicationID.String()),
			attribute.String("environment", cmd.Environment),
		))
	defer span.End()

	if len(cmd.Scans) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one scan result is required")
	}

	app, env, err := s.lookupTarget(ctx, cmd.ApplicationID, cmd.Environment)
	if err != nil {
		return nil, err
	}

	input := BuildEngineInput(app.Name, app.Owner, env.Name, env.RiskTier, env.Tools, env.Metadata, cmd.Scans)
	result, resolvedPolicy, engineErr := s.askEngine(ctx, app, env, input)

	var decision PolicyDecision
	var engineOutput []byte
	switch {
	case engineErr == nil:
		span.SetAttributes(attribute.String("policy", resolvedPolicy.String()))
		decision, err = NewPolicyDecision(result.Allow, result.Violations, result.Reason)
		if err != nil {
			s.metrics.IncrementEngineFailure("contract")
			return nil, err
		}
		engineOutput, err = json.Marshal(result)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal engine output")
		}
	case s.failOpen && !dErrors.HasCode(engineErr, dErrors.CodeContractViolation):
		// The engine could not be asked. Fail-open converts that into an
		// allow, and the audit evidence records the failure instead of an
		// engine answer. A contract-violating answer is never repaired this
		// way: the engine did respond, and its response cannot be trusted.
		s.logger.WarnContext(ctx, "policy engine unavailable, failing open",
			"application", app.Name,
			"environment", env.Name,
			"error", engineErr,
		)
		decision, err = NewPolicyDecision(true, nil, "policy engine unavailable, fail-open mode allowed the deployment")
		if err != nil {
			return nil, err
		}
		engineOutput, err = json.Marshal(map[string]string{"error": engineErr.Error(), "mode": "fail-open"})
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal engine output")
		}
	default:
		return nil, engineErr
	}

	engineInput, err := json.Marshal(input)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "marshal engine input")
	}

	evaluatedAt := s.now()
	eval, err := NewComplianceEvaluation(
		id.NewEvaluationID(), app.ID, env.Name, env.RiskTier,
		cmd.Scans, decision, evaluatedAt,
	)
	if err != nil {
		return nil, err
	}

	evidence, err := auditlog.NewDecisionEvidence(string(cmd.RawScans), string(engineInput), string(engineOutput), evaluatedAt)
	if err != nil {
		return nil, err
	}
	record, err := auditlog.New(
		eval.ID, app.ID, app.Name, env.Name, env.RiskTier,
		decision.Allow(), decision.Reason(), decision.Violations(),
		evidence,
		auditlog.SeverityCounts{
			Critical: eval.SeverityCount(id.SeverityCritical),
			High:     eval.SeverityCount(id.SeverityHigh),
			Medium:   eval.SeverityCount(id.SeverityMedium),
			Low:      eval.SeverityCount(id.SeverityLow),
		},
		evaluatedAt.Sub(start), evaluatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = s.storeTx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.evals.Save(txCtx, eval); err != nil {
			return err
		}
		return s.audits.Append(txCtx, record)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist evaluation and audit record")
	}

	s.observeOutcome(eval, s.now().Sub(start))
	s.dispatchNotification(ctx, app, eval)

	return eval, nil
}

// FindEvaluation returns a persisted evaluation by ID.
func (s *Service) FindEvaluation(ctx context.Context, evalID id.EvaluationID) (*ComplianceEvaluation, error) {
	eval, err := s.evals.FindByID(ctx, evalID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "evaluation %s not found", evalID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load evaluation")
	}
	return eval, nil
}

func (s *Service) lookupTarget(ctx context.Context, appID id.ApplicationID, envName string) (*models.Application, models.EnvironmentConfig, error) {
	app, err := s.apps.FindByID(ctx, appID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, models.EnvironmentConfig{}, dErrors.Newf(dErrors.CodeNotFound, "application %s not found", appID)
	}
	if err != nil {
		return nil, models.EnvironmentConfig{}, dErrors.Wrap(err, dErrors.CodeInternal, "load application")
	}
	if !app.IsActive() {
		return nil, models.EnvironmentConfig{}, dErrors.Newf(dErrors.CodeNotFound, "application %s not found", appID)
	}

	env, ok := app.Environment(envName)
	if !ok || !env.Active {
		return nil, models.EnvironmentConfig{}, dErrors.Newf(dErrors.CodeNotFound, "environment %q not configured for application %q", envName, app.Name)
	}
	return app, env, nil
}

// askEngine probes the candidate policy packages in resolution order and
// returns the first answer. An explicitly configured policy list bypasses the
// computed hierarchy entirely.
func (s *Service) askEngine(ctx context.Context, app *models.Application, env models.EnvironmentConfig, input EngineInput) (EngineResult, id.PolicyReference, error) {
	candidates := env.Policies
	explicit := len(candidates) > 0
	if !explicit {
		candidates = policy.Candidates(app.Name, app.Vertical, env.Name, id.PolicyReference(""))
	}

	for i, candidate := range candidates {
		engineStart := s.now()
		result, err := s.engine.Evaluate(ctx, candidate, input)
		s.metrics.ObserveEngineLatency(s.now().Sub(engineStart))

		if errors.Is(err, ErrPolicyUndefined) {
			continue
		}
		if err != nil {
			s.metrics.IncrementEngineFailure(failureKind(err))
			return EngineResult{}, "", err
		}
		s.metrics.IncrementPolicySource(policySource(explicit, app.Vertical, i))
		return result, candidate, nil
	}

	return EngineResult{}, "", dErrors.Newf(dErrors.CodeUnavailable, "no policy defined for application %q environment %q", app.Name, env.Name)
}

func (s *Service) observeOutcome(eval *ComplianceEvaluation, elapsed time.Duration) {
	outcome := "allowed"
	if eval.IsBlocked() {
		outcome = "blocked"
	}
	s.metrics.IncrementOutcome(outcome, eval.Environment)
	s.metrics.ObserveEvaluateLatency(elapsed)
}

// dispatchNotification publishes the decision without holding the request
// open. Only blocked deployments and critical findings are worth a page;
// a clean allow stays quiet. Failures are logged and dropped: the audit
// log is the system of record, notifications are a courtesy.
func (s *Service) dispatchNotification(ctx context.Context, app *models.Application, eval *ComplianceEvaluation) {
	if s.notifier == nil {
		return
	}

	decision := eval.Decision()
	critical := eval.SeverityCount(id.SeverityCritical)
	if decision.Allow() && critical == 0 {
		return
	}

	event := notify.DecisionEvent{
		EvaluationID: eval.ID.String(),
		Application:  app.Name,
		Environment:  eval.Environment,
		RiskTier:     eval.RiskTier.String(),
		Allowed:      decision.Allow(),
		Reason:       decision.Reason(),
		Violations:   decision.Violations(),
		Critical:     critical,
		High:         eval.SeverityCount(id.SeverityHigh),
		EvaluatedAt:  eval.EvaluatedAt,
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("decision notification panicked", "panic", r)
			}
		}()

		publishCtx, cancel := context.WithTimeout(detached, notifyTimeout)
		defer cancel()

		if err := s.notifier.Publish(publishCtx, event); err != nil {
			s.logger.WarnContext(publishCtx, "decision notification failed",
				"evaluation_id", event.EvaluationID,
				"error", err,
			)
		}
	}()
}

func failureKind(err error) string {
	switch {
	case dErrors.HasCode(err, dErrors.CodeTimeout):
		return "timeout"
	case dErrors.HasCode(err, dErrors.CodeContractViolation):
		return "contract"
	default:
		return "unavailable"
	}
}

func policySource(explicit bool, vertical string, index int) string {
	if explicit {
		return "override"
	}
	switch {
	case index == 0:
		return "application"
	case index == 1 && vertical != "":
		return "vertical"
	default:
		return "global"
	}
}

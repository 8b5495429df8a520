// Package auditlog holds the write-once evidence trail for evaluations.
//
// One AuditLog exists per evaluation and is never updated or deleted: the
// only way to get a new record for the same application is to run a new
// evaluation. The postgres store reinforces this with insert/select-only
// access.
package auditlog

import (
	"strings"
	"time"

	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

// DecisionEvidence captures the exact JSON exchanged during one evaluation:
// the raw scan results as submitted, the payload sent to the policy engine,
// and the payload received back. It is a point-in-time snapshot, never a
// reusable value: the captured-at timestamp participates in equality.
type DecisionEvidence struct {
	RawScanResults string
	EngineInput    string
	EngineOutput   string
	CapturedAt     time.Time
}

// NewDecisionEvidence validates and constructs evidence. All three JSON
// documents are required: an audit record that cannot replay the decision is
// worthless.
//
// Errors: CodeValidation when any document is empty.
func NewDecisionEvidence(rawScanResults, engineInput, engineOutput string, capturedAt time.Time) (DecisionEvidence, error) {
	if strings.TrimSpace(rawScanResults) == "" {
		return DecisionEvidence{}, dErrors.New(dErrors.CodeValidation, "raw scan results evidence cannot be empty")
	}
	if strings.TrimSpace(engineInput) == "" {
		return DecisionEvidence{}, dErrors.New(dErrors.CodeValidation, "engine input evidence cannot be empty")
	}
	if strings.TrimSpace(engineOutput) == "" {
		return DecisionEvidence{}, dErrors.New(dErrors.CodeValidation, "engine output evidence cannot be empty")
	}
	return DecisionEvidence{
		RawScanResults: rawScanResults,
		EngineInput:    engineInput,
		EngineOutput:   engineOutput,
		CapturedAt:     capturedAt,
	}, nil
}

// SeverityCounts carries the aggregated per-severity totals recorded with an
// audit log. Each count must be non-negative.
type SeverityCounts struct {
	Critical int
	High     int
	Medium   int
	Low      int
}

// Total sums all severities.
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low
}

// AuditLog is the aggregate root for one evaluation's immutable record. It
// snapshots the application name and risk tier that applied at evaluation
// time so later configuration changes never rewrite history.
type AuditLog struct {
	EvaluationID    id.EvaluationID
	ApplicationID   id.ApplicationID
	ApplicationName string
	Environment     string
	RiskTier        id.RiskTier
	Allowed         bool
	Reason          string
	Violations      []string
	Evidence        DecisionEvidence
	Counts          SeverityCounts
	Duration        time.Duration
	EvaluatedAt     time.Time
}

// New validates and constructs an AuditLog. Validation order: evaluation ID,
// application ID, severity counts, duration.
//
// Errors: CodeValidation; negative count messages name the severity, e.g.
// "critical count cannot be negative".
func New(
	evaluationID id.EvaluationID,
	applicationID id.ApplicationID,
	applicationName string,
	environment string,
	tier id.RiskTier,
	allowed bool,
	reason string,
	violations []string,
	evidence DecisionEvidence,
	counts SeverityCounts,
	duration time.Duration,
	evaluatedAt time.Time,
) (*AuditLog, error) {
	if evaluationID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "evaluation ID cannot be empty")
	}
	if applicationID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "application ID cannot be empty")
	}
	for _, check := range []struct {
		severity id.Severity
		count    int
	}{
		{id.SeverityCritical, counts.Critical},
		{id.SeverityHigh, counts.High},
		{id.SeverityMedium, counts.Medium},
		{id.SeverityLow, counts.Low},
	} {
		if check.count < 0 {
			return nil, dErrors.Newf(dErrors.CodeValidation, "%s count cannot be negative", check.severity)
		}
	}
	if duration < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "duration cannot be negative")
	}

	return &AuditLog{
		EvaluationID:    evaluationID,
		ApplicationID:   applicationID,
		ApplicationName: applicationName,
		Environment:     environment,
		RiskTier:        tier,
		Allowed:         allowed,
		Reason:          reason,
		Violations:      append([]string(nil), violations...),
		Evidence:        evidence,
		Counts:          counts,
		Duration:        duration,
		EvaluatedAt:     evaluatedAt,
	}, nil
}

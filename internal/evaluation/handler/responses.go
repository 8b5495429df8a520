package handler

import (
	"time"

	"gatekeeper/internal/evaluation"
	id "gatekeeper/pkg/domain"
)

// EvaluateResponse is the deploy gate verdict returned to CI pipelines.
// Passed is the single field gates branch on; the rest explains it.
type EvaluateResponse struct {
	EvaluationID  string          `json:"evaluation_id"`
	Passed        bool            `json:"passed"`
	Decision      decisionBody    `json:"decision"`
	Summary       findingsSummary `json:"findings"`
	ApplicationID string          `json:"application_id"`
	Environment   string          `json:"environment"`
	RiskTier      string          `json:"risk_tier"`
	EvaluatedAt   time.Time       `json:"evaluated_at"`
}

type decisionBody struct {
	Allowed    bool     `json:"allowed"`
	Reason     string   `json:"reason,omitempty"`
	Violations []string `json:"violations,omitempty"`
}

type findingsSummary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

func newEvaluateResponse(eval *evaluation.ComplianceEvaluation) EvaluateResponse {
	decision := eval.Decision()
	return EvaluateResponse{
		EvaluationID: eval.ID.String(),
		Passed:       !eval.IsBlocked(),
		Decision: decisionBody{
			Allowed:    decision.Allow(),
			Reason:     decision.Reason(),
			Violations: decision.Violations(),
		},
		Summary: findingsSummary{
			Critical: eval.SeverityCount(id.SeverityCritical),
			High:     eval.SeverityCount(id.SeverityHigh),
			Medium:   eval.SeverityCount(id.SeverityMedium),
			Low:      eval.SeverityCount(id.SeverityLow),
			Total:    eval.TotalVulnerabilityCount(),
		},
		ApplicationID: eval.ApplicationID.String(),
		Environment:   eval.Environment,
		RiskTier:      eval.RiskTier.String(),
		EvaluatedAt:   eval.EvaluatedAt,
	}
}

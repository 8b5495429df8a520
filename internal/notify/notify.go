// Package notify publishes deploy gate decisions to interested consumers.
// Delivery is best-effort: a lost notification never fails or retries an
// evaluation, the audit log remains the system of record.
package notify

import (
	"context"
	"time"
)

// DecisionEvent is the published record of one deploy gate decision.
type DecisionEvent struct {
	EvaluationID string    `json:"evaluation_id"`
	Application  string    `json:"application"`
	Environment  string    `json:"environment"`
	RiskTier     string    `json:"risk_tier"`
	Allowed      bool      `json:"allowed"`
	Reason       string    `json:"reason,omitempty"`
	Violations   []string  `json:"violations,omitempty"`
	Critical     int       `json:"critical_count"`
	High         int       `json:"high_count"`
	EvaluatedAt  time.Time `json:"evaluated_at"`
}

// Notifier publishes decision events.
type Notifier interface {
	Publish(ctx context.Context, event DecisionEvent) error
	Close()
}

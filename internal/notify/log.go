package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes decision events to the structured log. It is the
// fallback when no broker is configured, so local and test runs still show
// the full decision flow.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLog creates a log-backed notifier.
func NewLog(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Publish(ctx context.Context, event DecisionEvent) error {
	n.logger.InfoContext(ctx, "deploy gate decision",
		"evaluation_id", event.EvaluationID,
		"application", event.Application,
		"environment", event.Environment,
		"risk_tier", event.RiskTier,
		"allowed", event.Allowed,
		"violations", len(event.Violations),
	)
	return nil
}

func (n *LogNotifier) Close() {}

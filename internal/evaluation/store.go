package evaluation

import (
	"context"

	id "gatekeeper/pkg/domain"
)

// Store persists compliance evaluations. Save participates in an ambient
// transaction when one is present in the context, so the orchestrator can
// commit an evaluation and its audit record as one unit.
type Store interface {
	Save(ctx context.Context, eval *ComplianceEvaluation) error
	FindByID(ctx context.Context, evalID id.EvaluationID) (*ComplianceEvaluation, error)
}

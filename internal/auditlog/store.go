package auditlog

import (
	"context"

	id "gatekeeper/pkg/domain"
)

// Store persists audit records. Append participates in an ambient transaction
// when one is present in the context. There is no update or delete: the
// record of a decision is never revised.
type Store interface {
	Append(ctx context.Context, log *AuditLog) error
	FindByEvaluationID(ctx context.Context, evalID id.EvaluationID) (*AuditLog, error)
	ListByApplication(ctx context.Context, appID id.ApplicationID, limit int) ([]*AuditLog, error)
}

package domain

import (
	"github.com/google/uuid"

	dErrors "gatekeeper/pkg/domain-errors"
)

// Typed IDs prevent cross-aggregate mixups at compile time. Construct via
// ParseX at trust boundaries; direct casting bypasses validation.

// ApplicationID identifies an Application aggregate.
type ApplicationID uuid.UUID

// EvaluationID identifies a ComplianceEvaluation and its AuditLog.
type EvaluationID uuid.UUID

// NewApplicationID generates a fresh application ID.
func NewApplicationID() ApplicationID {
	return ApplicationID(uuid.New())
}

// NewEvaluationID generates a fresh evaluation ID.
func NewEvaluationID() EvaluationID {
	return EvaluationID(uuid.New())
}

// ParseApplicationID parses external input into an ApplicationID.
//
// Errors: CodeValidation when the value is empty, malformed, or the nil UUID.
func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s, "application id")
	if err != nil {
		return ApplicationID{}, err
	}
	return ApplicationID(u), nil
}

// ParseEvaluationID parses external input into an EvaluationID.
func ParseEvaluationID(s string) (EvaluationID, error) {
	u, err := parseUUID(s, "evaluation id")
	if err != nil {
		return EvaluationID{}, err
	}
	return EvaluationID(u), nil
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s cannot be empty", field)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s is not a valid UUID", field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeValidation, "%s cannot be the nil UUID", field)
	}
	return u, nil
}

func (id ApplicationID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero UUID.
func (id ApplicationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id EvaluationID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether the ID is the zero UUID.
func (id EvaluationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

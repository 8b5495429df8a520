package auditlog

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

var capturedAt = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func validEvidence(t *testing.T) DecisionEvidence {
	t.Helper()
	ev, err := NewDecisionEvidence(`[{"tool":"snyk"}]`, `{"input":{}}`, `{"result":{"allow":true}}`, capturedAt)
	require.NoError(t, err)
	return ev
}

func TestNewDecisionEvidence(t *testing.T) {
	t.Run("requires all three documents", func(t *testing.T) {
		tests := []struct {
			name               string
			raw, input, output string
		}{
			{"empty raw scans", "", `{}`, `{}`},
			{"empty engine input", `{}`, "  ", `{}`},
			{"empty engine output", `{}`, `{}`, ""},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				_, err := NewDecisionEvidence(tc.raw, tc.input, tc.output, capturedAt)
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			})
		}
	})

	t.Run("capture time participates in equality", func(t *testing.T) {
		a, err := NewDecisionEvidence(`{}`, `{}`, `{}`, capturedAt)
		require.NoError(t, err)
		b, err := NewDecisionEvidence(`{}`, `{}`, `{}`, capturedAt.Add(time.Nanosecond))
		require.NoError(t, err)
		c, err := NewDecisionEvidence(`{}`, `{}`, `{}`, capturedAt)
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
		assert.Equal(t, a, c)
	})
}

func TestNewAuditLog(t *testing.T) {
	evalID := id.EvaluationID(uuid.New())
	appID := id.ApplicationID(uuid.New())

	newLog := func(counts SeverityCounts, duration time.Duration) (*AuditLog, error) {
		return New(evalID, appID, "payment-api", "production", id.RiskTierCritical,
			false, "critical vulnerabilities present", []string{"Critical vulnerabilities (1) exceed maximum (0)"},
			validEvidence(t), counts, duration, capturedAt)
	}

	t.Run("accepts all-zero counts", func(t *testing.T) {
		log, err := newLog(SeverityCounts{}, 125*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 0, log.Counts.Total())
		assert.False(t, log.Allowed)
	})

	t.Run("rejects negative counts naming the severity", func(t *testing.T) {
		tests := []struct {
			counts  SeverityCounts
			message string
		}{
			{SeverityCounts{Critical: -1}, "critical count cannot be negative"},
			{SeverityCounts{High: -1}, "high count cannot be negative"},
			{SeverityCounts{Medium: -2}, "medium count cannot be negative"},
			{SeverityCounts{Low: -5}, "low count cannot be negative"},
		}
		for _, tc := range tests {
			_, err := newLog(tc.counts, time.Millisecond)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Contains(t, err.Error(), tc.message)
		}
	})

	t.Run("rejects negative duration", func(t *testing.T) {
		_, err := newLog(SeverityCounts{}, -time.Millisecond)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duration")
	})

	t.Run("rejects nil identifiers in order", func(t *testing.T) {
		_, err := New(id.EvaluationID{}, appID, "payment-api", "production", id.RiskTierHigh,
			true, "", nil, validEvidence(t), SeverityCounts{}, 0, capturedAt)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "evaluation ID")

		_, err = New(evalID, id.ApplicationID{}, "payment-api", "production", id.RiskTierHigh,
			true, "", nil, validEvidence(t), SeverityCounts{}, 0, capturedAt)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "application ID")
	})

	t.Run("violations are copied on construction", func(t *testing.T) {
		violations := []string{"original"}
		log, err := New(evalID, appID, "payment-api", "production", id.RiskTierHigh,
			false, "denied", violations, validEvidence(t), SeverityCounts{Critical: 1}, 0, capturedAt)
		require.NoError(t, err)

		violations[0] = "tampered"
		assert.Equal(t, "original", log.Violations[0])
	})
}

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gatekeeper/internal/evaluation"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/sentinel"
)

func newStoredEvaluation(t *testing.T) *evaluation.ComplianceEvaluation {
	t.Helper()

	now := time.Now()
	vuln, err := evaluation.NewVulnerability("CVE-2024-1234", "test vuln", id.SeverityCritical, 9.8, "libfoo", "1.0.0", "1.0.1")
	require.NoError(t, err)
	scan, err := evaluation.NewScanResult(id.ToolSnyk, "1.100.0", now.Add(-time.Hour), "", []evaluation.Vulnerability{vuln}, now)
	require.NoError(t, err)
	decision, err := evaluation.NewPolicyDecision(false, []string{"critical vulnerabilities present"}, "blocked")
	require.NoError(t, err)

	eval, err := evaluation.NewComplianceEvaluation(
		id.NewEvaluationID(), id.NewApplicationID(), "production", id.RiskTierCritical,
		[]evaluation.ScanResult{scan}, decision, now,
	)
	require.NoError(t, err)
	return eval
}

func TestInMemorySaveAndFind(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	eval := newStoredEvaluation(t)
	require.NoError(t, s.Save(ctx, eval))

	found, err := s.FindByID(ctx, eval.ID)
	require.NoError(t, err)
	require.Equal(t, eval.ID, found.ID)
	require.True(t, found.IsBlocked())
}

func TestInMemoryWriteOnce(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()

	eval := newStoredEvaluation(t)
	require.NoError(t, s.Save(ctx, eval))
	require.ErrorIs(t, s.Save(ctx, eval), sentinel.ErrConflict)
}

func TestInMemoryFindMissing(t *testing.T) {
	s := NewInMemory()
	_, err := s.FindByID(context.Background(), id.NewEvaluationID())
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"gatekeeper/internal/application/models"
	appstore "gatekeeper/internal/application/store"
	"gatekeeper/internal/auditlog"
	auditstore "gatekeeper/internal/auditlog/store"
	"gatekeeper/internal/evaluation"
	evalstore "gatekeeper/internal/evaluation/store"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/sentinel"
	txcontext "gatekeeper/pkg/platform/tx"
	"gatekeeper/pkg/testutil/containers"
)

type EvaluationPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	apps     *appstore.Postgres
	evals    *evalstore.Postgres
	audits   *auditstore.Postgres
}

func TestEvaluationPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(EvaluationPostgresSuite))
}

func (s *EvaluationPostgresSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.apps = appstore.NewPostgres(s.postgres.DB)
	s.evals = evalstore.NewPostgres(s.postgres.DB)
	s.audits = auditstore.NewPostgres(s.postgres.DB)
}

func (s *EvaluationPostgresSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"audit_logs", "evaluations", "environment_configs", "applications")
	s.Require().NoError(err)
}

func (s *EvaluationPostgresSuite) createApplication() *models.Application {
	app, err := models.NewApplication(id.NewApplicationID(), "payment-api", "appsec-team", "payments", time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.apps.CreateIfNameAvailable(context.Background(), app))
	return app
}

func (s *EvaluationPostgresSuite) buildEvaluation(appID id.ApplicationID) *evaluation.ComplianceEvaluation {
	now := time.Now()
	vuln, err := evaluation.NewVulnerability("CVE-2024-1234", "heap overflow", id.SeverityCritical, 9.8, "libfoo", "1.0.0", "1.0.1")
	s.Require().NoError(err)
	scan, err := evaluation.NewScanResult(id.ToolSnyk, "1.100.0", now.Add(-time.Hour), "proj-1", []evaluation.Vulnerability{vuln}, now)
	s.Require().NoError(err)
	decision, err := evaluation.NewPolicyDecision(false, []string{"Critical vulnerabilities (1) exceed maximum (0)"}, "blocked")
	s.Require().NoError(err)

	eval, err := evaluation.NewComplianceEvaluation(
		id.NewEvaluationID(), appID, "production", id.RiskTierCritical,
		[]evaluation.ScanResult{scan}, decision, now,
	)
	s.Require().NoError(err)
	return eval
}

func (s *EvaluationPostgresSuite) buildAuditLog(eval *evaluation.ComplianceEvaluation) *auditlog.AuditLog {
	evidence, err := auditlog.NewDecisionEvidence(`{"scans":[]}`, `{"input":{}}`, `{"result":{}}`, eval.EvaluatedAt)
	s.Require().NoError(err)

	decision := eval.Decision()
	log, err := auditlog.New(
		eval.ID, eval.ApplicationID, "payment-api", eval.Environment, eval.RiskTier,
		decision.Allow(), decision.Reason(), decision.Violations(),
		evidence,
		auditlog.SeverityCounts{Critical: eval.SeverityCount(id.SeverityCritical)},
		50*time.Millisecond, eval.EvaluatedAt,
	)
	s.Require().NoError(err)
	return log
}

// TestRoundTrip verifies an evaluation survives persistence intact.
func (s *EvaluationPostgresSuite) TestRoundTrip() {
	ctx := context.Background()
	app := s.createApplication()
	eval := s.buildEvaluation(app.ID)

	s.Require().NoError(s.evals.Save(ctx, eval))

	found, err := s.evals.FindByID(ctx, eval.ID)
	s.Require().NoError(err)
	s.Equal(eval.ID, found.ID)
	s.Equal("production", found.Environment)
	s.Equal(id.RiskTierCritical, found.RiskTier)
	s.True(found.IsBlocked())
	s.Equal(1, found.SeverityCount(id.SeverityCritical))

	scans := found.ScanResults()
	s.Require().Len(scans, 1)
	s.Equal(id.ToolSnyk, scans[0].Tool)
	s.Equal("proj-1", scans[0].ProjectID)

	vulns := scans[0].Vulnerabilities()
	s.Require().Len(vulns, 1)
	s.Equal("CVE-2024-1234", vulns[0].ID)
	s.InDelta(9.8, vulns[0].Score, 0.001)
}

// TestWriteOnce verifies a duplicate evaluation ID is rejected.
func (s *EvaluationPostgresSuite) TestWriteOnce() {
	ctx := context.Background()
	app := s.createApplication()
	eval := s.buildEvaluation(app.ID)

	s.Require().NoError(s.evals.Save(ctx, eval))
	s.Require().ErrorIs(s.evals.Save(ctx, eval), sentinel.ErrConflict)
}

// TestAtomicPairCommit verifies the evaluation and its audit record commit
// as one unit when both stores share the ambient transaction.
func (s *EvaluationPostgresSuite) TestAtomicPairCommit() {
	ctx := context.Background()
	app := s.createApplication()
	eval := s.buildEvaluation(app.ID)
	log := s.buildAuditLog(eval)

	tx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	txCtx := txcontext.WithTx(ctx, tx)

	s.Require().NoError(s.evals.Save(txCtx, eval))
	s.Require().NoError(s.audits.Append(txCtx, log))
	s.Require().NoError(tx.Commit())

	_, err = s.evals.FindByID(ctx, eval.ID)
	s.Require().NoError(err)

	found, err := s.audits.FindByEvaluationID(ctx, eval.ID)
	s.Require().NoError(err)
	s.False(found.Allowed)
	s.Equal(1, found.Counts.Critical)
	s.Equal(50*time.Millisecond, found.Duration)
	s.JSONEq(`{"input":{}}`, found.Evidence.EngineInput)
}

// TestAtomicPairRollback verifies neither aggregate is observable after a
// rollback mid-pair.
func (s *EvaluationPostgresSuite) TestAtomicPairRollback() {
	ctx := context.Background()
	app := s.createApplication()
	eval := s.buildEvaluation(app.ID)

	tx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	txCtx := txcontext.WithTx(ctx, tx)

	s.Require().NoError(s.evals.Save(txCtx, eval))
	s.Require().NoError(tx.Rollback())

	_, err = s.evals.FindByID(ctx, eval.ID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

// TestAuditListNewestFirst verifies audit listing order and limit.
func (s *EvaluationPostgresSuite) TestAuditListNewestFirst() {
	ctx := context.Background()
	app := s.createApplication()

	var last id.EvaluationID
	for i := 0; i < 3; i++ {
		eval := s.buildEvaluation(app.ID)
		s.Require().NoError(s.evals.Save(ctx, eval))
		s.Require().NoError(s.audits.Append(ctx, s.buildAuditLog(eval)))
		last = eval.ID
		time.Sleep(5 * time.Millisecond)
	}

	logs, err := s.audits.ListByApplication(ctx, app.ID, 2)
	s.Require().NoError(err)
	s.Require().Len(logs, 2)
	s.Equal(last, logs[0].EvaluationID)
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"gatekeeper/internal/evaluation"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/sentinel"
	txcontext "gatekeeper/pkg/platform/tx"
)

const pgUniqueViolation = "23505"

// Postgres persists ComplianceEvaluation aggregates. Scans and the decision
// are stored as JSON documents: evaluations are never queried by finding
// internals, only replayed whole.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a postgres-backed evaluation store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// execer returns the ambient transaction when the orchestrator opened one,
// otherwise the pool.
func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

type vulnerabilityDoc struct {
	ID             string  `json:"id"`
	Title          string  `json:"title,omitempty"`
	Severity       string  `json:"severity"`
	Score          float64 `json:"score"`
	PackageName    string  `json:"package_name,omitempty"`
	CurrentVersion string  `json:"current_version,omitempty"`
	FixedVersion   string  `json:"fixed_version,omitempty"`
}

type scanDoc struct {
	Tool            string             `json:"tool"`
	ToolVersion     string             `json:"tool_version"`
	ScannedAt       time.Time          `json:"scanned_at"`
	ProjectID       string             `json:"project_id,omitempty"`
	Vulnerabilities []vulnerabilityDoc `json:"vulnerabilities"`
}

type decisionDoc struct {
	Allow      bool     `json:"allow"`
	Violations []string `json:"violations"`
	Reason     string   `json:"reason,omitempty"`
}

// Save inserts the evaluation. Evaluations are write-once; a duplicate ID
// returns sentinel.ErrConflict.
func (s *Postgres) Save(ctx context.Context, eval *evaluation.ComplianceEvaluation) error {
	scans, err := json.Marshal(encodeScans(eval.ScanResults()))
	if err != nil {
		return fmt.Errorf("marshal scans: %w", err)
	}
	decision := eval.Decision()
	decisionRaw, err := json.Marshal(decisionDoc{
		Allow:      decision.Allow(),
		Violations: decision.Violations(),
		Reason:     decision.Reason(),
	})
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}

	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO evaluations (id, application_id, environment, risk_tier, scans, decision, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.UUID(eval.ID), uuid.UUID(eval.ApplicationID), eval.Environment, eval.RiskTier.String(), scans, decisionRaw, eval.EvaluatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

// FindByID rehydrates a stored evaluation.
// Returns sentinel.ErrNotFound when absent.
func (s *Postgres) FindByID(ctx context.Context, evalID id.EvaluationID) (*evaluation.ComplianceEvaluation, error) {
	var (
		appUUID     uuid.UUID
		environment string
		tier        string
		scansRaw    []byte
		decisionRaw []byte
		evaluatedAt time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT application_id, environment, risk_tier, scans, decision, evaluated_at
		FROM evaluations
		WHERE id = $1
	`, uuid.UUID(evalID)).Scan(&appUUID, &environment, &tier, &scansRaw, &decisionRaw, &evaluatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query evaluation: %w", err)
	}

	var scanDocs []scanDoc
	if err := json.Unmarshal(scansRaw, &scanDocs); err != nil {
		return nil, fmt.Errorf("unmarshal scans: %w", err)
	}
	var dec decisionDoc
	if err := json.Unmarshal(decisionRaw, &dec); err != nil {
		return nil, fmt.Errorf("unmarshal decision: %w", err)
	}

	return evaluation.RestoreComplianceEvaluation(
		evalID,
		id.ApplicationID(appUUID),
		environment,
		id.RiskTier(tier),
		decodeScans(scanDocs),
		evaluation.RestorePolicyDecision(dec.Allow, dec.Violations, dec.Reason),
		evaluatedAt,
	), nil
}

func encodeScans(scans []evaluation.ScanResult) []scanDoc {
	docs := make([]scanDoc, 0, len(scans))
	for _, scan := range scans {
		doc := scanDoc{
			Tool:        scan.Tool.String(),
			ToolVersion: scan.ToolVersion,
			ScannedAt:   scan.ScannedAt,
			ProjectID:   scan.ProjectID,
		}
		for _, v := range scan.Vulnerabilities() {
			doc.Vulnerabilities = append(doc.Vulnerabilities, vulnerabilityDoc{
				ID:             v.ID,
				Title:          v.Title,
				Severity:       v.Severity.String(),
				Score:          v.Score,
				PackageName:    v.PackageName,
				CurrentVersion: v.CurrentVersion,
				FixedVersion:   v.FixedVersion,
			})
		}
		docs = append(docs, doc)
	}
	return docs
}

func decodeScans(docs []scanDoc) []evaluation.ScanResult {
	scans := make([]evaluation.ScanResult, 0, len(docs))
	for _, doc := range docs {
		vulns := make([]evaluation.Vulnerability, 0, len(doc.Vulnerabilities))
		for _, v := range doc.Vulnerabilities {
			vulns = append(vulns, evaluation.Vulnerability{
				ID:             v.ID,
				Title:          v.Title,
				Severity:       id.Severity(v.Severity),
				Score:          v.Score,
				PackageName:    v.PackageName,
				CurrentVersion: v.CurrentVersion,
				FixedVersion:   v.FixedVersion,
			})
		}
		scans = append(scans, evaluation.RestoreScanResult(
			id.SecurityTool(doc.Tool), doc.ToolVersion, doc.ScannedAt, doc.ProjectID, vulns,
		))
	}
	return scans
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

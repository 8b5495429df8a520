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

	"gatekeeper/internal/auditlog"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/sentinel"
	txcontext "gatekeeper/pkg/platform/tx"
)

const pgUniqueViolation = "23505"

// Postgres persists audit records in the audit_logs table. The table is
// insert and select only; the application role never holds UPDATE or DELETE
// on it, so immutability is enforced below this code as well.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a postgres-backed audit store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts the record. The primary key on evaluation_id makes a second
// append for the same evaluation fail with sentinel.ErrConflict.
func (s *Postgres) Append(ctx context.Context, log *auditlog.AuditLog) error {
	violations, err := json.Marshal(log.Violations)
	if err != nil {
		return fmt.Errorf("marshal violations: %w", err)
	}

	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO audit_logs (
			evaluation_id, application_id, application_name, environment, risk_tier,
			allowed, reason, violations,
			raw_scan_results, engine_input, engine_output, evidence_captured_at,
			critical_count, high_count, medium_count, low_count,
			duration_ms, evaluated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		uuid.UUID(log.EvaluationID),
		uuid.UUID(log.ApplicationID),
		log.ApplicationName,
		log.Environment,
		log.RiskTier.String(),
		log.Allowed,
		log.Reason,
		violations,
		log.Evidence.RawScanResults,
		log.Evidence.EngineInput,
		log.Evidence.EngineOutput,
		log.Evidence.CapturedAt,
		log.Counts.Critical,
		log.Counts.High,
		log.Counts.Medium,
		log.Counts.Low,
		log.Duration.Milliseconds(),
		log.EvaluatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

const auditColumns = `
	evaluation_id, application_id, application_name, environment, risk_tier,
	allowed, reason, violations,
	raw_scan_results, engine_input, engine_output, evidence_captured_at,
	critical_count, high_count, medium_count, low_count,
	duration_ms, evaluated_at
`

// FindByEvaluationID returns the record for one evaluation.
// Returns sentinel.ErrNotFound when absent.
func (s *Postgres) FindByEvaluationID(ctx context.Context, evalID id.EvaluationID) (*auditlog.AuditLog, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+auditColumns+`
		FROM audit_logs
		WHERE evaluation_id = $1
	`, uuid.UUID(evalID))

	log, err := scanAuditLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return log, nil
}

// ListByApplication returns records for an application, newest first.
func (s *Postgres) ListByApplication(ctx context.Context, appID id.ApplicationID, limit int) ([]*auditlog.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+auditColumns+`
		FROM audit_logs
		WHERE application_id = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, uuid.UUID(appID), limit)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()

	var logs []*auditlog.AuditLog
	for rows.Next() {
		log, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	return logs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditLog(row rowScanner) (*auditlog.AuditLog, error) {
	var (
		evalUUID      uuid.UUID
		appUUID       uuid.UUID
		log           auditlog.AuditLog
		tier          string
		violationsRaw []byte
		durationMS    int64
	)
	err := row.Scan(
		&evalUUID,
		&appUUID,
		&log.ApplicationName,
		&log.Environment,
		&tier,
		&log.Allowed,
		&log.Reason,
		&violationsRaw,
		&log.Evidence.RawScanResults,
		&log.Evidence.EngineInput,
		&log.Evidence.EngineOutput,
		&log.Evidence.CapturedAt,
		&log.Counts.Critical,
		&log.Counts.High,
		&log.Counts.Medium,
		&log.Counts.Low,
		&durationMS,
		&log.EvaluatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan audit log: %w", err)
	}

	if err := json.Unmarshal(violationsRaw, &log.Violations); err != nil {
		return nil, fmt.Errorf("unmarshal violations: %w", err)
	}
	log.EvaluationID = id.EvaluationID(evalUUID)
	log.ApplicationID = id.ApplicationID(appUUID)
	log.RiskTier = id.RiskTier(tier)
	log.Duration = time.Duration(durationMS) * time.Millisecond
	return &log, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

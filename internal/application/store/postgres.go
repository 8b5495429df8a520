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

	"gatekeeper/internal/application/models"
	id "gatekeeper/pkg/domain"
	"gatekeeper/pkg/platform/sentinel"
)

// pgUniqueViolation is the postgres error code for unique constraint
// violations, used to translate races on the name index into
// sentinel.ErrAlreadyUsed.
const pgUniqueViolation = "23505"

// Postgres persists Application aggregates across the applications and
// environment_configs tables. Environment rows are replaced wholesale on
// update: the aggregate is the unit of consistency, not the row.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a postgres-backed application store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type environmentRow struct {
	Tools    []string          `json:"tools"`
	Policies []string          `json:"policies"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreateIfNameAvailable inserts the application, relying on the unique name
// index as the storage-layer backstop for the aggregate invariant.
func (s *Postgres) CreateIfNameAvailable(ctx context.Context, app *models.Application) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO applications (id, name, owner, vertical, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.UUID(app.ID), app.Name, app.Owner, app.Vertical, app.Active, app.CreatedAt, app.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert application: %w", err)
	}

	if err := insertEnvironments(ctx, tx, app); err != nil {
		return err
	}
	return tx.Commit()
}

// FindByID loads the aggregate with its environments.
func (s *Postgres) FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.findOne(ctx, `WHERE id = $1`, uuid.UUID(appID))
}

// FindByName loads the aggregate by case-insensitive name.
func (s *Postgres) FindByName(ctx context.Context, name string) (*models.Application, error) {
	return s.findOne(ctx, `WHERE lower(name) = lower($1)`, name)
}

// Update rewrites the application row and replaces its environment rows in
// one transaction.
func (s *Postgres) Update(ctx context.Context, app *models.Application) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE applications
		SET name = $2, owner = $3, vertical = $4, active = $5, updated_at = $6
		WHERE id = $1
	`, uuid.UUID(app.ID), app.Name, app.Owner, app.Vertical, app.Active, app.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM environment_configs WHERE application_id = $1`, uuid.UUID(app.ID)); err != nil {
		return fmt.Errorf("clear environments: %w", err)
	}
	if err := insertEnvironments(ctx, tx, app); err != nil {
		return err
	}
	return tx.Commit()
}

func insertEnvironments(ctx context.Context, tx *sql.Tx, app *models.Application) error {
	for pos, env := range app.Environments() {
		row := environmentRow{Metadata: env.Metadata}
		for _, tool := range env.Tools {
			row.Tools = append(row.Tools, tool.String())
		}
		for _, ref := range env.Policies {
			row.Policies = append(row.Policies, ref.String())
		}
		payload, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal environment config: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO environment_configs (application_id, name, risk_tier, config, active, position)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.UUID(app.ID), env.Name, env.RiskTier.String(), payload, env.Active, pos)
		if err != nil {
			if isUniqueViolation(err) {
				return sentinel.ErrAlreadyUsed
			}
			return fmt.Errorf("insert environment config: %w", err)
		}
	}
	return nil
}

func (s *Postgres) findOne(ctx context.Context, where string, arg any) (*models.Application, error) {
	var (
		appUUID               uuid.UUID
		name, owner, vertical string
		active                bool
		createdAt, updatedAt  time.Time
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, owner, vertical, active, created_at, updated_at
		FROM applications `+where,
		arg,
	).Scan(&appUUID, &name, &owner, &vertical, &active, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query application: %w", err)
	}

	envs, err := s.loadEnvironments(ctx, appUUID)
	if err != nil {
		return nil, err
	}

	return models.RestoreApplication(
		id.ApplicationID(appUUID), name, owner, vertical, active, createdAt, updatedAt, envs,
	), nil
}

func (s *Postgres) loadEnvironments(ctx context.Context, appUUID uuid.UUID) ([]models.EnvironmentConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, risk_tier, config, active
		FROM environment_configs
		WHERE application_id = $1
		ORDER BY position
	`, appUUID)
	if err != nil {
		return nil, fmt.Errorf("query environments: %w", err)
	}
	defer rows.Close()

	var envs []models.EnvironmentConfig
	for rows.Next() {
		var (
			envName, tier string
			payload       []byte
			active        bool
		)
		if err := rows.Scan(&envName, &tier, &payload, &active); err != nil {
			return nil, fmt.Errorf("scan environment: %w", err)
		}

		var row environmentRow
		if err := json.Unmarshal(payload, &row); err != nil {
			return nil, fmt.Errorf("unmarshal environment config: %w", err)
		}

		env := models.EnvironmentConfig{
			Name:     envName,
			RiskTier: id.RiskTier(tier),
			Metadata: row.Metadata,
			Active:   active,
		}
		for _, tool := range row.Tools {
			env.Tools = append(env.Tools, id.SecurityTool(tool))
		}
		for _, ref := range row.Policies {
			env.Policies = append(env.Policies, id.PolicyReference(ref))
		}
		envs = append(envs, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate environments: %w", err)
	}
	return envs, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

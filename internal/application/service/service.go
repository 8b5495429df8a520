// Package service orchestrates application registry operations: registering
// applications, configuring their environments, and flipping the active flag
// that gates new evaluations.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gatekeeper/internal/application/metrics"
	"gatekeeper/internal/application/models"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/sentinel"
)

// Store persists application aggregates.
type Store interface {
	CreateIfNameAvailable(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	FindByName(ctx context.Context, name string) (*models.Application, error)
	Update(ctx context.Context, app *models.Application) error
}

// EnvironmentSpec carries one environment configuration through the service
// layer in domain types. The transport layer is responsible for parsing
// string input into these types.
type EnvironmentSpec struct {
	Name     string
	RiskTier id.RiskTier
	Tools    []id.SecurityTool
	Policies []id.PolicyReference
	Metadata map[string]string
}

// CreateApplicationCommand registers a new application, optionally with its
// initial environments.
type CreateApplicationCommand struct {
	Name         string
	Owner        string
	Vertical     string
	Environments []EnvironmentSpec
}

// Service orchestrates application registry operations.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New constructs a Service.
func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateApplication registers an application and its initial environments.
//
// Errors: CodeValidation for malformed input; CodeConflict when the name is
// already taken.
func (s *Service) CreateApplication(ctx context.Context, cmd CreateApplicationCommand) (*models.Application, error) {
	now := s.now()

	app, err := models.NewApplication(id.NewApplicationID(), cmd.Name, cmd.Owner, cmd.Vertical, now)
	if err != nil {
		// Convert invariant violations to validation errors for API response
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, dErrors.Message(err))
		}
		return nil, err
	}

	for _, env := range cmd.Environments {
		if err := app.AddEnvironment(env.Name, env.RiskTier, env.Tools, env.Policies, env.Metadata, now); err != nil {
			return nil, err
		}
	}

	if err := s.store.CreateIfNameAvailable(ctx, app); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "application name %q is already registered", app.Name)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create application")
	}

	s.logger.InfoContext(ctx, "application registered",
		"application_id", app.ID,
		"application", app.Name,
		"environments", len(cmd.Environments))
	s.metrics.IncrementApplicationsCreated()

	return app, nil
}

// GetApplication returns an application by ID.
func (s *Service) GetApplication(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	start := time.Now()
	defer s.metrics.ObserveLookup(start)

	app, err := s.store.FindByID(ctx, appID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}
	return app, nil
}

// GetApplicationByName returns an application by its unique name.
// Lookup is case-insensitive.
func (s *Service) GetApplicationByName(ctx context.Context, name string) (*models.Application, error) {
	start := time.Now()
	defer s.metrics.ObserveLookup(start)

	app, err := s.store.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}
	return app, nil
}

// AddEnvironment appends a new environment configuration to an application.
//
// Errors: CodeNotFound for an unknown application; CodeConflict when the
// environment name already exists; CodeValidation for malformed input.
func (s *Service) AddEnvironment(ctx context.Context, appID id.ApplicationID, spec EnvironmentSpec) (*models.Application, error) {
	app, err := s.GetApplication(ctx, appID)
	if err != nil {
		return nil, err
	}

	if err := app.AddEnvironment(spec.Name, spec.RiskTier, spec.Tools, spec.Policies, spec.Metadata, s.now()); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, app); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save application")
	}

	s.logger.InfoContext(ctx, "environment added",
		"application_id", app.ID,
		"application", app.Name,
		"environment", spec.Name)
	s.metrics.IncrementEnvironmentChange("added")

	return app, nil
}

// UpdateEnvironment replaces the configuration of an existing environment.
// Active controls whether the environment keeps accepting evaluations.
//
// Errors: CodeNotFound for an unknown application or environment;
// CodeValidation for malformed input.
func (s *Service) UpdateEnvironment(ctx context.Context, appID id.ApplicationID, spec EnvironmentSpec, active bool) (*models.Application, error) {
	app, err := s.GetApplication(ctx, appID)
	if err != nil {
		return nil, err
	}

	if err := app.UpdateEnvironment(spec.Name, spec.RiskTier, spec.Tools, spec.Policies, spec.Metadata, active, s.now()); err != nil {
		return nil, err
	}

	if err := s.store.Update(ctx, app); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save application")
	}

	s.logger.InfoContext(ctx, "environment updated",
		"application_id", app.ID,
		"application", app.Name,
		"environment", spec.Name,
		"active", active)
	s.metrics.IncrementEnvironmentChange("updated")

	return app, nil
}

// DeactivateApplication stops the application from accepting new
// evaluations. Idempotent; historical evaluations are untouched.
func (s *Service) DeactivateApplication(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.setActive(ctx, appID, false)
}

// ReactivateApplication re-enables evaluations for the application.
// Idempotent.
func (s *Service) ReactivateApplication(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	return s.setActive(ctx, appID, true)
}

func (s *Service) setActive(ctx context.Context, appID id.ApplicationID, active bool) (*models.Application, error) {
	app, err := s.GetApplication(ctx, appID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var changed bool
	var kind string
	if active {
		changed = app.Reactivate(now)
		kind = "reactivated"
	} else {
		changed = app.Deactivate(now)
		kind = "deactivated"
	}
	if !changed {
		return app, nil
	}

	if err := s.store.Update(ctx, app); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save application")
	}

	s.logger.InfoContext(ctx, "application state changed",
		"application_id", app.ID,
		"application", app.Name,
		"active", active)
	s.metrics.IncrementEnvironmentChange(kind)

	return app, nil
}

package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

// Name rules are deliberately narrow: names become policy package segments
// and notification keys, so they stay lowercase DNS-label shaped.
var (
	applicationNamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
	environmentNamePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
)

const (
	maxNameLength  = 64
	maxOwnerLength = 128
)

// EnvironmentConfig describes how one environment of an application is
// evaluated: its risk tier, the scanners whose reports are required, and the
// policy packages bound to it. Policies may be empty, in which case
// evaluation resolves packages through the naming hierarchy instead.
//
// An EnvironmentConfig belongs to exactly one Application and is only reached
// through the aggregate's methods.
type EnvironmentConfig struct {
	Name     string
	RiskTier id.RiskTier
	Tools    []id.SecurityTool
	Policies []id.PolicyReference
	Metadata map[string]string
	Active   bool
}

// clone returns a deep copy so callers can never mutate aggregate state
// through a returned view.
func (e EnvironmentConfig) clone() EnvironmentConfig {
	out := e
	out.Tools = append([]id.SecurityTool(nil), e.Tools...)
	out.Policies = append([]id.PolicyReference(nil), e.Policies...)
	if e.Metadata != nil {
		out.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Application is the aggregate root for a deployable application and its
// per-environment compliance configuration.
//
// Invariants:
//   - Name is non-empty, lowercase DNS-label shaped, at most 64 characters,
//     and unique across the system (the store backstops uniqueness)
//   - Owner is a non-empty contact string of at most 128 characters
//   - Environment names are unique within the aggregate (case-insensitive)
//   - Environments are mutated only through aggregate methods
//
// Deactivation is a reversible state flag, not a delete: historical
// evaluations keep referencing the application by ID and snapshot.
type Application struct {
	ID        id.ApplicationID
	Name      string
	Owner     string
	Vertical  string // optional business vertical tag feeding policy resolution
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time

	environments []EnvironmentConfig
}

// NewApplication validates and constructs an Application with no
// environments.
//
// Errors: CodeInvariantViolation for empty, oversized, or malformed name and
// owner values. The service layer converts these to validation errors.
func NewApplication(appID id.ApplicationID, name, owner, vertical string, now time.Time) (*Application, error) {
	name = strings.TrimSpace(name)
	owner = strings.TrimSpace(owner)
	vertical = strings.ToLower(strings.TrimSpace(vertical))

	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "application name cannot be empty")
	}
	if len(name) > maxNameLength {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "application name must be %d characters or less", maxNameLength)
	}
	if !applicationNamePattern.MatchString(name) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "application name must be lowercase alphanumeric with hyphens")
	}
	if owner == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "application owner cannot be empty")
	}
	if len(owner) > maxOwnerLength {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "application owner must be %d characters or less", maxOwnerLength)
	}
	if vertical != "" && !applicationNamePattern.MatchString(vertical) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "vertical must be lowercase alphanumeric with hyphens")
	}

	return &Application{
		ID:        appID,
		Name:      name,
		Owner:     owner,
		Vertical:  vertical,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// RestoreApplication rehydrates an aggregate from persisted state. Stores are
// the only intended caller; it performs no validation because the persisted
// state already passed the constructor once.
func RestoreApplication(
	appID id.ApplicationID,
	name, owner, vertical string,
	active bool,
	createdAt, updatedAt time.Time,
	environments []EnvironmentConfig,
) *Application {
	app := &Application{
		ID:        appID,
		Name:      name,
		Owner:     owner,
		Vertical:  vertical,
		Active:    active,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	for _, env := range environments {
		app.environments = append(app.environments, env.clone())
	}
	return app
}

// IsActive reports whether the application accepts new evaluations.
func (a *Application) IsActive() bool {
	return a.Active
}

// Deactivate flips the active flag off. Idempotent: repeated calls leave the
// flag off and only the first call bumps UpdatedAt. Returns whether state
// changed so callers can skip duplicate audit events.
func (a *Application) Deactivate(now time.Time) bool {
	if !a.Active {
		return false
	}
	a.Active = false
	a.UpdatedAt = now
	return true
}

// Reactivate flips the active flag on. Idempotent like Deactivate.
func (a *Application) Reactivate(now time.Time) bool {
	if a.Active {
		return false
	}
	a.Active = true
	a.UpdatedAt = now
	return true
}

// AddEnvironment validates and appends a new environment configuration.
//
// Errors: CodeConflict when the name already exists on this aggregate
// (case-insensitive); CodeValidation when the tier or tools are missing or
// unsupported.
func (a *Application) AddEnvironment(
	name string,
	tier id.RiskTier,
	tools []id.SecurityTool,
	policies []id.PolicyReference,
	metadata map[string]string,
	now time.Time,
) error {
	env, err := newEnvironmentConfig(name, tier, tools, policies, metadata)
	if err != nil {
		return err
	}

	if a.findEnvironment(env.Name) != nil {
		return dErrors.Newf(dErrors.CodeConflict, "environment %q already exists", env.Name)
	}

	a.environments = append(a.environments, env)
	a.UpdatedAt = now
	return nil
}

// UpdateEnvironment replaces the configuration of an existing environment.
// The environment name itself is immutable; rename by adding a new
// environment and deactivating the old one.
//
// Errors: CodeNotFound when the environment does not exist; CodeValidation
// as for AddEnvironment.
func (a *Application) UpdateEnvironment(
	name string,
	tier id.RiskTier,
	tools []id.SecurityTool,
	policies []id.PolicyReference,
	metadata map[string]string,
	active bool,
	now time.Time,
) error {
	env, err := newEnvironmentConfig(name, tier, tools, policies, metadata)
	if err != nil {
		return err
	}
	env.Active = active

	existing := a.findEnvironment(env.Name)
	if existing == nil {
		return dErrors.Newf(dErrors.CodeNotFound, "environment %q not found", env.Name)
	}

	*existing = env
	a.UpdatedAt = now
	return nil
}

// Environment returns a copy of the named environment configuration, or
// false when it does not exist. Lookup is case-insensitive.
func (a *Application) Environment(name string) (EnvironmentConfig, bool) {
	env := a.findEnvironment(normalizeEnvironmentName(name))
	if env == nil {
		return EnvironmentConfig{}, false
	}
	return env.clone(), true
}

// Environments returns copies of all environment configurations in insertion
// order. The backing collection is never exposed.
func (a *Application) Environments() []EnvironmentConfig {
	out := make([]EnvironmentConfig, 0, len(a.environments))
	for _, env := range a.environments {
		out = append(out, env.clone())
	}
	return out
}

// Clone deep-copies the aggregate. Memory stores rely on this to keep their
// state isolated from callers.
func (a *Application) Clone() *Application {
	return RestoreApplication(a.ID, a.Name, a.Owner, a.Vertical, a.Active, a.CreatedAt, a.UpdatedAt, a.environments)
}

func (a *Application) findEnvironment(normalized string) *EnvironmentConfig {
	for i := range a.environments {
		if a.environments[i].Name == normalized {
			return &a.environments[i]
		}
	}
	return nil
}

func normalizeEnvironmentName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func newEnvironmentConfig(
	name string,
	tier id.RiskTier,
	tools []id.SecurityTool,
	policies []id.PolicyReference,
	metadata map[string]string,
) (EnvironmentConfig, error) {
	name = normalizeEnvironmentName(name)
	if name == "" {
		return EnvironmentConfig{}, dErrors.New(dErrors.CodeValidation, "environment name cannot be empty")
	}
	if len(name) > maxNameLength {
		return EnvironmentConfig{}, dErrors.Newf(dErrors.CodeValidation, "environment name must be %d characters or less", maxNameLength)
	}
	if !environmentNamePattern.MatchString(name) {
		return EnvironmentConfig{}, dErrors.New(dErrors.CodeValidation, "environment name must be lowercase alphanumeric with hyphens")
	}
	if !tier.IsValid() {
		return EnvironmentConfig{}, dErrors.Newf(dErrors.CodeValidation, "invalid risk tier: %s", tier)
	}
	if len(tools) == 0 {
		return EnvironmentConfig{}, dErrors.New(dErrors.CodeValidation, "at least one security tool is required")
	}

	// Tools and policies are sets: duplicates collapse, order of first
	// appearance is kept.
	dedupedTools, err := dedupeTools(tools)
	if err != nil {
		return EnvironmentConfig{}, err
	}
	dedupedPolicies, err := dedupePolicies(policies)
	if err != nil {
		return EnvironmentConfig{}, err
	}

	env := EnvironmentConfig{
		Name:     name,
		RiskTier: tier,
		Tools:    dedupedTools,
		Policies: dedupedPolicies,
		Active:   true,
	}
	if len(metadata) > 0 {
		env.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			env.Metadata[k] = v
		}
	}
	return env, nil
}

func dedupeTools(tools []id.SecurityTool) ([]id.SecurityTool, error) {
	seen := make(map[id.SecurityTool]bool, len(tools))
	out := make([]id.SecurityTool, 0, len(tools))
	for _, tool := range tools {
		if !tool.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unsupported security tool: %s", tool))
		}
		if seen[tool] {
			continue
		}
		seen[tool] = true
		out = append(out, tool)
	}
	return out, nil
}

func dedupePolicies(policies []id.PolicyReference) ([]id.PolicyReference, error) {
	seen := make(map[id.PolicyReference]bool, len(policies))
	out := make([]id.PolicyReference, 0, len(policies))
	for _, ref := range policies {
		if ref.IsZero() {
			return nil, dErrors.New(dErrors.CodeValidation, "policy package cannot be empty")
		}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out, nil
}

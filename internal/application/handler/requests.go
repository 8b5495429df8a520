package handler

import (
	"strings"

	"gatekeeper/internal/application/service"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	pstrings "gatekeeper/pkg/platform/strings"
)

// environmentPayload is the wire form of an environment configuration.
// Policies are optional; an empty list means the evaluation side resolves
// policy packages through the naming hierarchy.
type environmentPayload struct {
	Name     string            `json:"name"`
	RiskTier string            `json:"risk_tier"`
	Tools    []string          `json:"tools"`
	Policies []string          `json:"policies,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (p environmentPayload) spec() (service.EnvironmentSpec, error) {
	tier, err := id.ParseRiskTier(p.RiskTier)
	if err != nil {
		return service.EnvironmentSpec{}, err
	}

	rawTools := pstrings.DedupeAndTrimLower(p.Tools)
	tools := make([]id.SecurityTool, 0, len(rawTools))
	for _, raw := range rawTools {
		tool, err := id.ParseSecurityTool(raw)
		if err != nil {
			return service.EnvironmentSpec{}, err
		}
		tools = append(tools, tool)
	}

	var policies []id.PolicyReference
	for _, raw := range pstrings.DedupeAndTrim(p.Policies) {
		ref, err := id.ParsePolicyReference(raw)
		if err != nil {
			return service.EnvironmentSpec{}, err
		}
		policies = append(policies, ref)
	}

	return service.EnvironmentSpec{
		Name:     p.Name,
		RiskTier: tier,
		Tools:    tools,
		Policies: policies,
		Metadata: p.Metadata,
	}, nil
}

// CreateApplicationRequest registers an application with optional initial
// environments.
type CreateApplicationRequest struct {
	Name         string               `json:"name"`
	Owner        string               `json:"owner"`
	Vertical     string               `json:"vertical,omitempty"`
	Environments []environmentPayload `json:"environments,omitempty"`
}

func (r *CreateApplicationRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if strings.TrimSpace(r.Owner) == "" {
		return dErrors.New(dErrors.CodeValidation, "owner is required")
	}
	for _, env := range r.Environments {
		if _, err := env.spec(); err != nil {
			return err
		}
	}
	return nil
}

// Command converts the validated request into the service command.
func (r *CreateApplicationRequest) Command() (service.CreateApplicationCommand, error) {
	cmd := service.CreateApplicationCommand{
		Name:     r.Name,
		Owner:    r.Owner,
		Vertical: r.Vertical,
	}
	for _, env := range r.Environments {
		spec, err := env.spec()
		if err != nil {
			return service.CreateApplicationCommand{}, err
		}
		cmd.Environments = append(cmd.Environments, spec)
	}
	return cmd, nil
}

// EnvironmentRequest adds or replaces one environment configuration.
type EnvironmentRequest struct {
	environmentPayload

	// Active only applies to updates; additions always start active.
	Active *bool `json:"active,omitempty"`
}

// Validate parses the typed fields. The environment name is left to the
// aggregate: on updates the URL path supplies it after decoding.
func (r *EnvironmentRequest) Validate() error {
	_, err := r.spec()
	return err
}

// Spec converts the validated request into the service spec.
func (r *EnvironmentRequest) Spec() (service.EnvironmentSpec, error) {
	return r.spec()
}

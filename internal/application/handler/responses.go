package handler

import (
	"time"

	"gatekeeper/internal/application/models"
)

// ApplicationResponse is the wire form of an application and its
// environments.
type ApplicationResponse struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Owner        string               `json:"owner"`
	Vertical     string               `json:"vertical,omitempty"`
	Active       bool                 `json:"active"`
	Environments []environmentSummary `json:"environments"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

type environmentSummary struct {
	Name     string            `json:"name"`
	RiskTier string            `json:"risk_tier"`
	Tools    []string          `json:"tools"`
	Policies []string          `json:"policies,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Active   bool              `json:"active"`
}

func newApplicationResponse(app *models.Application) ApplicationResponse {
	resp := ApplicationResponse{
		ID:           app.ID.String(),
		Name:         app.Name,
		Owner:        app.Owner,
		Vertical:     app.Vertical,
		Active:       app.IsActive(),
		Environments: []environmentSummary{},
		CreatedAt:    app.CreatedAt,
		UpdatedAt:    app.UpdatedAt,
	}
	for _, env := range app.Environments() {
		summary := environmentSummary{
			Name:     env.Name,
			RiskTier: string(env.RiskTier),
			Tools:    make([]string, 0, len(env.Tools)),
			Metadata: env.Metadata,
			Active:   env.Active,
		}
		for _, tool := range env.Tools {
			summary.Tools = append(summary.Tools, string(tool))
		}
		for _, ref := range env.Policies {
			summary.Policies = append(summary.Policies, string(ref))
		}
		resp.Environments = append(resp.Environments, summary)
	}
	return resp
}

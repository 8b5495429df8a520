package evaluation

import (
	"context"
	"errors"
	"time"

	id "gatekeeper/pkg/domain"
)

// ErrPolicyUndefined reports that the engine has no policy at the probed
// path. The orchestrator treats it as "try the next candidate", never as an
// engine failure.
var ErrPolicyUndefined = errors.New("policy undefined")

// EngineInput is the aggregated document submitted to the policy engine.
// It snapshots everything the policy may rule on so decisions are replayable
// from the audit evidence alone: the application context, the full finding
// list per scan, and precomputed severity totals for simple policies.
type EngineInput struct {
	Application   string            `json:"application"`
	Owner         string            `json:"owner"`
	Environment   string            `json:"environment"`
	RiskTier      string            `json:"risk_tier"`
	RequiredTools []string          `json:"required_tools"`
	ScannedTools  []string          `json:"scanned_tools"`
	Scans         []EngineScan      `json:"scans"`
	Counts        map[string]int    `json:"severity_counts"`
	TotalFindings int               `json:"total_findings"`
	MaxScore      float64           `json:"max_score"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// EngineScan is one tool's report inside the engine input.
type EngineScan struct {
	Tool            string          `json:"tool"`
	ToolVersion     string          `json:"tool_version"`
	ScannedAt       time.Time       `json:"scanned_at"`
	ProjectID       string          `json:"project_id,omitempty"`
	Vulnerabilities []EngineFinding `json:"vulnerabilities"`
}

// EngineFinding is one vulnerability as the policy sees it, fixed-version
// availability included so policies can rule on patchability.
type EngineFinding struct {
	ID             string  `json:"id"`
	Title          string  `json:"title,omitempty"`
	Severity       string  `json:"severity"`
	Score          float64 `json:"score"`
	PackageName    string  `json:"package_name,omitempty"`
	CurrentVersion string  `json:"current_version,omitempty"`
	FixedVersion   string  `json:"fixed_version,omitempty"`
}

// EngineResult is the engine's verdict before domain validation. The
// orchestrator maps it through NewPolicyDecision, which enforces the
// decision/violation contract.
type EngineResult struct {
	Allow      bool     `json:"allow"`
	Violations []string `json:"violations"`
	Reason     string   `json:"reason"`
}

// Engine asks an external policy engine for a verdict at a specific policy
// path.
//
// Returns ErrPolicyUndefined when no policy exists at the path. Returns a
// coded error (unavailable, timeout) for infrastructure failures so callers
// can distinguish "policy says no" from "could not ask policy".
type Engine interface {
	Evaluate(ctx context.Context, policy id.PolicyReference, input EngineInput) (EngineResult, error)
}

// BuildEngineInput aggregates scan results into the engine input document.
// No deduplication across tools: two tools reporting the same CVE contribute
// two findings.
func BuildEngineInput(appName, owner, environment string, tier id.RiskTier, requiredTools []id.SecurityTool, metadata map[string]string, scans []ScanResult) EngineInput {
	input := EngineInput{
		Application: appName,
		Owner:       owner,
		Environment: environment,
		RiskTier:    tier.String(),
		Counts:      make(map[string]int, len(id.Severities())),
		Metadata:    metadata,
	}
	for _, tool := range requiredTools {
		input.RequiredTools = append(input.RequiredTools, tool.String())
	}
	for _, sev := range id.Severities() {
		input.Counts[sev.String()] = 0
	}
	for _, scan := range scans {
		input.ScannedTools = append(input.ScannedTools, scan.Tool.String())
		engineScan := EngineScan{
			Tool:        scan.Tool.String(),
			ToolVersion: scan.ToolVersion,
			ScannedAt:   scan.ScannedAt,
			ProjectID:   scan.ProjectID,
		}
		for _, v := range scan.Vulnerabilities() {
			engineScan.Vulnerabilities = append(engineScan.Vulnerabilities, EngineFinding{
				ID:             v.ID,
				Title:          v.Title,
				Severity:       v.Severity.String(),
				Score:          v.Score,
				PackageName:    v.PackageName,
				CurrentVersion: v.CurrentVersion,
				FixedVersion:   v.FixedVersion,
			})
			input.Counts[v.Severity.String()]++
			input.TotalFindings++
			if v.Score > input.MaxScore {
				input.MaxScore = v.Score
			}
		}
		input.Scans = append(input.Scans, engineScan)
	}
	return input
}

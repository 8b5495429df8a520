package handler

import (
	"encoding/json"
	"time"

	"gatekeeper/internal/evaluation"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

// EvaluateRequest is the deploy gate submission. Scans stay raw through
// decoding so the audit evidence captures exactly what the caller sent.
type EvaluateRequest struct {
	ApplicationID string          `json:"application_id"`
	Environment   string          `json:"environment"`
	Scans         json.RawMessage `json:"scans"`

	appID  id.ApplicationID
	parsed []evaluation.ScanResult
}

type scanPayload struct {
	Tool            string                 `json:"tool"`
	ToolVersion     string                 `json:"tool_version"`
	ScannedAt       time.Time              `json:"scanned_at"`
	ProjectID       string                 `json:"project_id,omitempty"`
	Vulnerabilities []vulnerabilityPayload `json:"vulnerabilities"`
}

type vulnerabilityPayload struct {
	ID             string  `json:"id"`
	Title          string  `json:"title,omitempty"`
	Severity       string  `json:"severity"`
	Score          float64 `json:"score"`
	PackageName    string  `json:"package_name,omitempty"`
	CurrentVersion string  `json:"current_version,omitempty"`
	FixedVersion   string  `json:"fixed_version,omitempty"`
}

// Validate parses the raw scan documents through the domain constructors so
// malformed submissions fail before any collaborator is touched.
func (r *EvaluateRequest) Validate() error {
	if r.ApplicationID == "" {
		return dErrors.New(dErrors.CodeValidation, "application_id is required")
	}
	appID, err := id.ParseApplicationID(r.ApplicationID)
	if err != nil {
		return err
	}
	r.appID = appID

	if r.Environment == "" {
		return dErrors.New(dErrors.CodeValidation, "environment is required")
	}
	if len(r.Scans) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one scan result is required")
	}

	var payloads []scanPayload
	if err := json.Unmarshal(r.Scans, &payloads); err != nil {
		return dErrors.New(dErrors.CodeValidation, "scans must be an array of scan results")
	}
	if len(payloads) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one scan result is required")
	}

	now := time.Now()
	r.parsed = make([]evaluation.ScanResult, 0, len(payloads))
	for _, payload := range payloads {
		tool, err := id.ParseSecurityTool(payload.Tool)
		if err != nil {
			return err
		}

		vulns := make([]evaluation.Vulnerability, 0, len(payload.Vulnerabilities))
		for _, v := range payload.Vulnerabilities {
			severity, err := id.ParseSeverity(v.Severity)
			if err != nil {
				return err
			}
			vuln, err := evaluation.NewVulnerability(v.ID, v.Title, severity, v.Score, v.PackageName, v.CurrentVersion, v.FixedVersion)
			if err != nil {
				return err
			}
			vulns = append(vulns, vuln)
		}

		scan, err := evaluation.NewScanResult(tool, payload.ToolVersion, payload.ScannedAt, payload.ProjectID, vulns, now)
		if err != nil {
			return err
		}
		r.parsed = append(r.parsed, scan)
	}
	return nil
}

// Command converts the validated request into the orchestrator command.
func (r *EvaluateRequest) Command() evaluation.EvaluateCommand {
	return evaluation.EvaluateCommand{
		ApplicationID: r.appID,
		Environment:   r.Environment,
		Scans:         r.parsed,
		RawScans:      r.Scans,
	}
}

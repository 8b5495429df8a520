package evaluation

import (
	"strings"
	"time"

	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
)

// Vulnerability is one finding reported by one scanning tool. Immutable once
// constructed. Two tools reporting the same CVE produce two distinct
// Vulnerability values: deduplication is a policy-engine concern, never done
// here, because changing it would change compliance outcomes.
type Vulnerability struct {
	ID             string // CVE or tool-specific identifier
	Title          string
	Severity       id.Severity
	Score          float64 // CVSS-style score in [0,10]
	PackageName    string
	CurrentVersion string
	FixedVersion   string // empty when no fix is available
}

// NewVulnerability validates and constructs a Vulnerability.
//
// Errors: CodeValidation for an empty identifier, unsupported severity, or a
// score outside [0,10].
func NewVulnerability(vulnID, title string, severity id.Severity, score float64, packageName, currentVersion, fixedVersion string) (Vulnerability, error) {
	if strings.TrimSpace(vulnID) == "" {
		return Vulnerability{}, dErrors.New(dErrors.CodeValidation, "vulnerability id cannot be empty")
	}
	if !severity.IsValid() {
		return Vulnerability{}, dErrors.Newf(dErrors.CodeValidation, "invalid severity: %s", severity)
	}
	if score < 0 || score > 10 {
		return Vulnerability{}, dErrors.Newf(dErrors.CodeValidation, "score must be between 0 and 10, got %g", score)
	}
	return Vulnerability{
		ID:             strings.TrimSpace(vulnID),
		Title:          title,
		Severity:       severity,
		Score:          score,
		PackageName:    packageName,
		CurrentVersion: currentVersion,
		FixedVersion:   fixedVersion,
	}, nil
}

// ScanResult is one security tool's report for one scan.
type ScanResult struct {
	Tool        id.SecurityTool
	ToolVersion string
	ScannedAt   time.Time
	ProjectID   string // optional external project identifier
	vulns       []Vulnerability
}

// NewScanResult validates and constructs a ScanResult.
//
// Errors: CodeValidation when the tool is unsupported, the tool version is
// empty, or the scan timestamp is in the future relative to now.
func NewScanResult(tool id.SecurityTool, toolVersion string, scannedAt time.Time, projectID string, vulns []Vulnerability, now time.Time) (ScanResult, error) {
	if !tool.IsValid() {
		return ScanResult{}, dErrors.Newf(dErrors.CodeValidation, "unsupported security tool: %s", tool)
	}
	if strings.TrimSpace(toolVersion) == "" {
		return ScanResult{}, dErrors.New(dErrors.CodeValidation, "tool version cannot be empty")
	}
	if scannedAt.After(now) {
		return ScanResult{}, dErrors.New(dErrors.CodeValidation, "scan timestamp cannot be in the future")
	}
	return ScanResult{
		Tool:        tool,
		ToolVersion: strings.TrimSpace(toolVersion),
		ScannedAt:   scannedAt,
		ProjectID:   projectID,
		vulns:       append([]Vulnerability(nil), vulns...),
	}, nil
}

// Vulnerabilities returns a copy of the findings in reported order.
func (s ScanResult) Vulnerabilities() []Vulnerability {
	return append([]Vulnerability(nil), s.vulns...)
}

// SeverityCount counts findings at the given severity. Computed on demand,
// never cached, so the count is always consistent with the finding list.
func (s ScanResult) SeverityCount(sev id.Severity) int {
	count := 0
	for _, v := range s.vulns {
		if v.Severity == sev {
			count++
		}
	}
	return count
}

// TotalCount counts all findings in this scan.
func (s ScanResult) TotalCount() int {
	return len(s.vulns)
}

// PolicyDecision is the external engine's verdict.
//
// Invariant, enforced at construction and never bypassable:
//
//	allow == false  requires at least one violation
//	allow == true   requires zero violations
//
// This guarantees every denial is explainable and every explained decision
// is a denial.
type PolicyDecision struct {
	allow      bool
	violations []string
	reason     string
}

// NewPolicyDecision validates and constructs a PolicyDecision.
//
// Errors: CodeContractViolation when the allow flag and violation list
// disagree. Callers map engine responses through this so a misbehaving engine
// is surfaced, not silently repaired.
func NewPolicyDecision(allow bool, violations []string, reason string) (PolicyDecision, error) {
	trimmed := make([]string, 0, len(violations))
	for _, v := range violations {
		if strings.TrimSpace(v) != "" {
			trimmed = append(trimmed, v)
		}
	}

	if !allow && len(trimmed) == 0 {
		return PolicyDecision{}, dErrors.New(dErrors.CodeContractViolation, "denial requires at least one violation")
	}
	if allow && len(trimmed) > 0 {
		return PolicyDecision{}, dErrors.New(dErrors.CodeContractViolation, "allowed decision cannot carry violations")
	}

	return PolicyDecision{allow: allow, violations: trimmed, reason: reason}, nil
}

// Allow reports the verdict.
func (d PolicyDecision) Allow() bool { return d.allow }

// Violations returns a copy of the ordered violation messages.
func (d PolicyDecision) Violations() []string {
	return append([]string(nil), d.violations...)
}

// Reason returns the engine's explanatory reason string.
func (d PolicyDecision) Reason() string { return d.reason }

// ComplianceEvaluation is the aggregate root for one evaluation request. It
// snapshots the environment and risk tier at evaluation time so later
// configuration changes never retroactively alter the record. Created once,
// immutable thereafter, persisted exactly once.
type ComplianceEvaluation struct {
	ID            id.EvaluationID
	ApplicationID id.ApplicationID
	Environment   string
	RiskTier      id.RiskTier // snapshot at evaluation time
	EvaluatedAt   time.Time

	scans    []ScanResult
	decision PolicyDecision
}

// NewComplianceEvaluation validates and constructs an evaluation.
//
// Errors: CodeValidation when the application ID is nil, the environment is
// blank, or no scan results were submitted. "No scan" is a policy-visible
// condition that must reach the engine as an explicit denial input, not slip
// through silently.
func NewComplianceEvaluation(
	evalID id.EvaluationID,
	appID id.ApplicationID,
	environment string,
	tier id.RiskTier,
	scans []ScanResult,
	decision PolicyDecision,
	evaluatedAt time.Time,
) (*ComplianceEvaluation, error) {
	if evalID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "evaluation id cannot be nil")
	}
	if appID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "application id cannot be nil")
	}
	if strings.TrimSpace(environment) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "environment cannot be empty")
	}
	if !tier.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "invalid risk tier: %s", tier)
	}
	if len(scans) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one scan result is required")
	}

	return &ComplianceEvaluation{
		ID:            evalID,
		ApplicationID: appID,
		Environment:   strings.TrimSpace(environment),
		RiskTier:      tier,
		EvaluatedAt:   evaluatedAt,
		scans:         append([]ScanResult(nil), scans...),
		decision:      decision,
	}, nil
}

// ScanResults returns a copy of the submitted scans in order.
func (e *ComplianceEvaluation) ScanResults() []ScanResult {
	return append([]ScanResult(nil), e.scans...)
}

// Decision returns the policy decision for this evaluation.
func (e *ComplianceEvaluation) Decision() PolicyDecision {
	return e.decision
}

// SeverityCount sums findings at the given severity across all scans. No
// deduplication by vulnerability identifier: each reported finding counts
// independently.
func (e *ComplianceEvaluation) SeverityCount(sev id.Severity) int {
	total := 0
	for _, scan := range e.scans {
		total += scan.SeverityCount(sev)
	}
	return total
}

// TotalVulnerabilityCount sums all findings across all scans.
func (e *ComplianceEvaluation) TotalVulnerabilityCount() int {
	total := 0
	for _, scan := range e.scans {
		total += scan.TotalCount()
	}
	return total
}

// IsBlocked reports whether the decision denies deployment.
func (e *ComplianceEvaluation) IsBlocked() bool {
	return !e.decision.Allow()
}

// RestoreScanResult rehydrates a scan result from persisted state. Stores are
// the only intended caller; the state already passed NewScanResult once.
func RestoreScanResult(tool id.SecurityTool, toolVersion string, scannedAt time.Time, projectID string, vulns []Vulnerability) ScanResult {
	return ScanResult{
		Tool:        tool,
		ToolVersion: toolVersion,
		ScannedAt:   scannedAt,
		ProjectID:   projectID,
		vulns:       append([]Vulnerability(nil), vulns...),
	}
}

// RestorePolicyDecision rehydrates a decision from persisted state without
// re-running the contract checks.
func RestorePolicyDecision(allow bool, violations []string, reason string) PolicyDecision {
	return PolicyDecision{
		allow:      allow,
		violations: append([]string(nil), violations...),
		reason:     reason,
	}
}

// RestoreComplianceEvaluation rehydrates an evaluation from persisted state.
func RestoreComplianceEvaluation(
	evalID id.EvaluationID,
	appID id.ApplicationID,
	environment string,
	tier id.RiskTier,
	scans []ScanResult,
	decision PolicyDecision,
	evaluatedAt time.Time,
) *ComplianceEvaluation {
	return &ComplianceEvaluation{
		ID:            evalID,
		ApplicationID: appID,
		Environment:   environment,
		RiskTier:      tier,
		EvaluatedAt:   evaluatedAt,
		scans:         append([]ScanResult(nil), scans...),
		decision:      decision,
	}
}

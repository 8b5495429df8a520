package domain

import (
	"strings"

	dErrors "gatekeeper/pkg/domain-errors"
)

// Severity classifies a single vulnerability finding.
//
// Invariant: the value is one of critical/high/medium/low, lowercase.
// Severity and RiskTier share a vocabulary but are distinct types on purpose:
// one describes a finding, the other an application.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

var validSeverities = map[Severity]bool{
	SeverityCritical: true,
	SeverityHigh:     true,
	SeverityMedium:   true,
	SeverityLow:      true,
}

// Severities returns all severities in descending order. Used for stable
// iteration when aggregating counts.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}

// ParseSeverity constructs a Severity from external input (case-insensitive).
//
// Errors: CodeValidation when the value is empty or unsupported.
func ParseSeverity(s string) (Severity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "severity cannot be empty")
	}
	sev := Severity(s)
	if !validSeverities[sev] {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid severity: %s", s)
	}
	return sev, nil
}

// IsValid checks the severity against the supported set.
func (s Severity) IsValid() bool {
	return validSeverities[s]
}

func (s Severity) String() string { return string(s) }

package domain

import (
	"strings"

	dErrors "gatekeeper/pkg/domain-errors"
)

// RiskTier classifies an application's sensitivity. It informs which policy
// package governs an evaluation; thresholds themselves live in the external
// policy engine, not here.
//
// Invariant: the value is one of critical/high/medium/low, lowercase.
type RiskTier string

const (
	RiskTierCritical RiskTier = "critical"
	RiskTierHigh     RiskTier = "high"
	RiskTierMedium   RiskTier = "medium"
	RiskTierLow      RiskTier = "low"
)

var validRiskTiers = map[RiskTier]bool{
	RiskTierCritical: true,
	RiskTierHigh:     true,
	RiskTierMedium:   true,
	RiskTierLow:      true,
}

// ParseRiskTier constructs a RiskTier from external input. Input is
// case-insensitive and normalized to lowercase.
//
// Errors: CodeValidation when the value is empty or not a supported tier.
func ParseRiskTier(s string) (RiskTier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "risk tier cannot be empty")
	}
	t := RiskTier(s)
	if !validRiskTiers[t] {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid risk tier: %s", s)
	}
	return t, nil
}

// IsValid checks the tier against the supported set.
func (t RiskTier) IsValid() bool {
	return validRiskTiers[t]
}

// IsCritical reports whether the tier is critical.
func (t RiskTier) IsCritical() bool {
	return t == RiskTierCritical
}

// IsHighOrAbove reports whether the tier is high or critical.
func (t RiskTier) IsHighOrAbove() bool {
	return t == RiskTierCritical || t == RiskTierHigh
}

func (t RiskTier) String() string { return string(t) }

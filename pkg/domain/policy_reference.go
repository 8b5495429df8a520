package domain

import (
	"regexp"
	"strings"

	dErrors "gatekeeper/pkg/domain-errors"
)

// PolicyReference wraps a policy package identifier (a dotted path such as
// "appsec.global.production"). The identifier is opaque to this service
// beyond its shape; the policy engine owns what it means.
type PolicyReference string

// Dotted path of non-empty segments: letters, digits, underscores.
var policyPackagePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)*$`)

// ParsePolicyReference constructs a PolicyReference from external input.
//
// Errors: CodeValidation when the value is empty or not a dotted package path.
func ParsePolicyReference(s string) (PolicyReference, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "policy package cannot be empty")
	}
	if !policyPackagePattern.MatchString(s) {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid policy package: %s", s)
	}
	return PolicyReference(s), nil
}

func (p PolicyReference) String() string { return string(p) }

// IsZero reports whether the reference is unset.
func (p PolicyReference) IsZero() bool { return p == "" }

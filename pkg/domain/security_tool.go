package domain

import (
	"strings"

	dErrors "gatekeeper/pkg/domain-errors"
)

// SecurityTool identifies a scanning tool whose reports this service accepts.
// Unknown tool names are rejected at configuration time, not at evaluation
// time: an environment cannot require a tool the service has never heard of.
type SecurityTool string

// Supported scanning tools.
const (
	ToolSnyk        SecurityTool = "snyk"        // dependency scanner
	ToolPrismaCloud SecurityTool = "prismacloud" // container/cloud scanner
	ToolTrivy       SecurityTool = "trivy"       // container/filesystem scanner
	ToolGrype       SecurityTool = "grype"       // container/SBOM scanner
)

// validSecurityTools is the single source of truth for the tool whitelist.
var validSecurityTools = map[SecurityTool]bool{
	ToolSnyk:        true,
	ToolPrismaCloud: true,
	ToolTrivy:       true,
	ToolGrype:       true,
}

// ParseSecurityTool constructs a SecurityTool from external input
// (case-insensitive).
//
// Errors: CodeValidation when the value is empty or not whitelisted.
func ParseSecurityTool(s string) (SecurityTool, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "security tool cannot be empty")
	}
	tool := SecurityTool(s)
	if !validSecurityTools[tool] {
		return "", dErrors.Newf(dErrors.CodeValidation, "unsupported security tool: %s", s)
	}
	return tool, nil
}

// IsValid checks the tool against the whitelist.
func (t SecurityTool) IsValid() bool {
	return validSecurityTools[t]
}

func (t SecurityTool) String() string { return string(t) }

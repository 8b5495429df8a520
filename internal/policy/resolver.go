// Package policy selects which policy packages can govern an evaluation.
//
// Resolution is a pure ordering function: it produces candidate package
// identifiers without any I/O. Whether a candidate actually exists is known
// only to the policy engine, so the orchestrator probes the candidates in
// order and the first one the engine resolves wins.
package policy

import (
	"strings"

	id "gatekeeper/pkg/domain"
)

// Package identifier segments. The global tier must exist in the engine for
// every known environment; it is the non-optional fallback.
const (
	rootSegment     = "appsec"
	appSegment      = "apps"
	verticalSegment = "verticals"
	globalSegment   = "global"
)

// Candidates returns the policy packages to probe, most specific first:
//
//  1. an explicit override, alone, bypassing every other tier
//  2. the application-specific package for (application, environment)
//  3. the vertical package for (vertical, environment), when a vertical is set
//  4. the global default package for the environment
//
// Names are sanitized into package segments (hyphens become underscores)
// because application names are DNS-label shaped while policy packages are
// dotted identifier paths.
func Candidates(applicationName, vertical, environment string, override id.PolicyReference) []id.PolicyReference {
	if !override.IsZero() {
		return []id.PolicyReference{override}
	}

	env := segment(environment)
	candidates := []id.PolicyReference{
		ref(rootSegment, appSegment, segment(applicationName), env),
	}
	if vertical != "" {
		candidates = append(candidates, ref(rootSegment, verticalSegment, segment(vertical), env))
	}
	candidates = append(candidates, GlobalDefault(environment))
	return candidates
}

// GlobalDefault returns the global fallback package for an environment.
func GlobalDefault(environment string) id.PolicyReference {
	return ref(rootSegment, globalSegment, segment(environment))
}

func ref(parts ...string) id.PolicyReference {
	return id.PolicyReference(strings.Join(parts, "."))
}

func segment(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
}

package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gatekeeper/internal/evaluation"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/circuit"
)

func testInput() evaluation.EngineInput {
	return evaluation.EngineInput{
		Application: "payment-api",
		Environment: "production",
		RiskTier:    "critical",
		Counts:      map[string]int{"critical": 1, "high": 1, "medium": 0, "low": 0},
	}
}

func TestEvaluateDeny(t *testing.T) {
	var gotPath string
	var gotBody struct {
		Input evaluation.EngineInput `json:"input"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"allow":false,"violations":["Critical vulnerabilities (1) exceed maximum (0)"],"reason":"tier policy"}}`))
	}))
	defer srv.Close()

	client := NewOPA(srv.URL)
	result, err := client.Evaluate(context.Background(), "appsec.apps.payment_api.production", testInput())
	require.NoError(t, err)

	assert.Equal(t, "/v1/data/appsec/apps/payment_api/production", gotPath)
	assert.Equal(t, "payment-api", gotBody.Input.Application)
	assert.False(t, result.Allow)
	assert.Equal(t, []string{"Critical vulnerabilities (1) exceed maximum (0)"}, result.Violations)
	assert.Equal(t, "tier policy", result.Reason)
}

func TestEvaluateAllow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"allow":true,"violations":[],"reason":"no blocking findings"}}`))
	}))
	defer srv.Close()

	client := NewOPA(srv.URL)
	result, err := client.Evaluate(context.Background(), "appsec.global.production", testInput())
	require.NoError(t, err)
	assert.True(t, result.Allow)
	assert.Empty(t, result.Violations)
}

func TestEvaluateUndefinedPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// OPA answers an empty object when no document exists at the path.
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewOPA(srv.URL)
	_, err := client.Evaluate(context.Background(), "appsec.apps.unknown.production", testInput())
	require.ErrorIs(t, err, evaluation.ErrPolicyUndefined)
}

func TestEvaluateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewOPA(srv.URL)
	_, err := client.Evaluate(context.Background(), "appsec.global.production", testInput())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	assert.NotErrorIs(t, err, evaluation.ErrPolicyUndefined)
}

func TestEvaluateUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // refuse connections

	client := NewOPA(srv.URL)
	_, err := client.Evaluate(context.Background(), "appsec.global.production", testInput())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
}

func TestEvaluateTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		srv.Close()
	}()

	client := NewOPA(srv.URL, WithTimeout(50*time.Millisecond))
	_, err := client.Evaluate(context.Background(), "appsec.global.production", testInput())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}

func TestEvaluateMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":`))
	}))
	defer srv.Close()

	client := NewOPA(srv.URL)
	_, err := client.Evaluate(context.Background(), "appsec.global.production", testInput())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeContractViolation))
}

func TestEvaluateTracksBreaker(t *testing.T) {
	var fail bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"result":{"allow":true}}`))
	}))
	defer srv.Close()

	breaker := circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))
	client := NewOPA(srv.URL, WithBreaker(breaker))

	fail = true
	for i := 0; i < 2; i++ {
		_, err := client.Evaluate(context.Background(), "appsec.global.production", testInput())
		require.Error(t, err)
	}
	assert.True(t, breaker.IsOpen())

	// The client keeps querying while open; a recovered engine closes it.
	fail = false
	_, err := client.Evaluate(context.Background(), "appsec.global.production", testInput())
	require.NoError(t, err)
	assert.False(t, breaker.IsOpen())
}

func TestBuildEngineInputAggregation(t *testing.T) {
	now := time.Now()
	mk := func(vulnID string, sev id.Severity, score float64) evaluation.Vulnerability {
		v, err := evaluation.NewVulnerability(vulnID, "", sev, score, "pkg", "1.0.0", "")
		require.NoError(t, err)
		return v
	}

	snyk, err := evaluation.NewScanResult(id.ToolSnyk, "1.0.0", now.Add(-time.Minute), "", []evaluation.Vulnerability{
		mk("CVE-2024-0001", id.SeverityCritical, 9.8),
		mk("CVE-2024-0002", id.SeverityHigh, 7.5),
	}, now)
	require.NoError(t, err)

	// Same CVE reported by a second tool still counts.
	trivy, err := evaluation.NewScanResult(id.ToolTrivy, "0.50.0", now.Add(-time.Minute), "", []evaluation.Vulnerability{
		mk("CVE-2024-0001", id.SeverityCritical, 9.8),
	}, now)
	require.NoError(t, err)

	input := evaluation.BuildEngineInput(
		"payment-api", "security@example.com", "production", id.RiskTierCritical,
		[]id.SecurityTool{id.ToolSnyk, id.ToolPrismaCloud},
		map[string]string{"region": "eu-west-1"},
		[]evaluation.ScanResult{snyk, trivy},
	)

	assert.Equal(t, "payment-api", input.Application)
	assert.Equal(t, "security@example.com", input.Owner)
	assert.Equal(t, "critical", input.RiskTier)
	assert.Equal(t, []string{"snyk", "prismacloud"}, input.RequiredTools)
	assert.Equal(t, []string{"snyk", "trivy"}, input.ScannedTools)
	assert.Equal(t, 2, input.Counts["critical"])
	assert.Equal(t, 1, input.Counts["high"])
	assert.Equal(t, 0, input.Counts["low"])
	assert.Equal(t, 3, input.TotalFindings)
	assert.InDelta(t, 9.8, input.MaxScore, 0.001)

	// Policies rule on individual findings, so the full per-scan list rides
	// along with the aggregates.
	require.Len(t, input.Scans, 2)
	assert.Equal(t, "snyk", input.Scans[0].Tool)
	require.Len(t, input.Scans[0].Vulnerabilities, 2)
	assert.Equal(t, "CVE-2024-0001", input.Scans[0].Vulnerabilities[0].ID)
	assert.Equal(t, "critical", input.Scans[0].Vulnerabilities[0].Severity)
	assert.Equal(t, "1.0.0", input.Scans[0].Vulnerabilities[0].CurrentVersion)
	require.Len(t, input.Scans[1].Vulnerabilities, 1)
	assert.Equal(t, "CVE-2024-0001", input.Scans[1].Vulnerabilities[0].ID)
}

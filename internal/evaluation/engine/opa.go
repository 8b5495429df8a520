// Package engine implements the policy engine port against OPA's data API.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gatekeeper/internal/evaluation"
	id "gatekeeper/pkg/domain"
	dErrors "gatekeeper/pkg/domain-errors"
	"gatekeeper/pkg/platform/circuit"
)

// DefaultTimeout bounds a single policy query. Deployments gate on this call,
// so it fails fast rather than holding the pipeline open.
const DefaultTimeout = 10 * time.Second

// OPAClient queries an OPA server over its v1 data API. A query against a
// path OPA has no document for yields an empty body, which the client
// surfaces as evaluation.ErrPolicyUndefined so the resolver fallback chain
// can continue.
type OPAClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	breaker *circuit.Breaker
}

// Option configures an OPAClient.
type Option func(*OPAClient)

// WithTimeout overrides the default query timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *OPAClient) {
		c.client.Timeout = timeout
	}
}

// WithLogger attaches a logger for query diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *OPAClient) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *OPAClient) {
		c.client = client
	}
}

// WithBreaker tracks engine reachability on a circuit breaker. The client
// keeps querying either way; open and close transitions are logged so
// operators see sustained outages as two log lines, not a line per request.
func WithBreaker(b *circuit.Breaker) Option {
	return func(c *OPAClient) {
		c.breaker = b
	}
}

// NewOPA creates a client for the OPA server at baseURL.
func NewOPA(baseURL string, opts ...Option) *OPAClient {
	c := &OPAClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type queryRequest struct {
	Input evaluation.EngineInput `json:"input"`
}

type queryResponse struct {
	Result *evaluation.EngineResult `json:"result"`
}

// Evaluate queries the policy document at the given reference.
func (c *OPAClient) Evaluate(ctx context.Context, policy id.PolicyReference, input evaluation.EngineInput) (evaluation.EngineResult, error) {
	body, err := json.Marshal(queryRequest{Input: input})
	if err != nil {
		return evaluation.EngineResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "marshal engine input")
	}

	url := c.baseURL + "/v1/data/" + policyURLPath(policy)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return evaluation.EngineResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "build engine request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.markFailure(ctx)
		if errors.Is(err, context.DeadlineExceeded) || isClientTimeout(err) {
			return evaluation.EngineResult{}, dErrors.Wrap(err, dErrors.CodeTimeout, "policy engine timed out")
		}
		return evaluation.EngineResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "policy engine unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.markFailure(ctx)
		return evaluation.EngineResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "read engine response")
	}

	if resp.StatusCode != http.StatusOK {
		c.markFailure(ctx)
		c.logger.WarnContext(ctx, "policy engine returned error status",
			"policy", policy,
			"status", resp.StatusCode,
		)
		return evaluation.EngineResult{}, dErrors.Newf(dErrors.CodeUnavailable, "policy engine status %d", resp.StatusCode)
	}

	c.markSuccess(ctx)

	var decoded queryResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return evaluation.EngineResult{}, dErrors.Wrap(err, dErrors.CodeContractViolation, "malformed engine response")
	}
	if decoded.Result == nil {
		return evaluation.EngineResult{}, fmt.Errorf("policy %s: %w", policy, evaluation.ErrPolicyUndefined)
	}
	return *decoded.Result, nil
}

// policyURLPath converts a dotted policy reference into OPA's slash-separated
// document path.
func policyURLPath(policy id.PolicyReference) string {
	return strings.ReplaceAll(policy.String(), ".", "/")
}

func (c *OPAClient) markFailure(ctx context.Context) {
	if c.breaker == nil {
		return
	}
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.ErrorContext(ctx, "policy engine circuit opened", "breaker", c.breaker.Name())
	}
}

func (c *OPAClient) markSuccess(ctx context.Context) {
	if c.breaker == nil {
		return
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "policy engine circuit closed", "breaker", c.breaker.Name())
	}
}

func isClientTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Package catalog implements thin HTTP clients to the external
// reference-catalog and identity-source systems (C13, ambient): every
// call carries a context deadline and is retried with exponential
// backoff, since these systems sit outside the core's control.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

// Config shapes the retry policy and deadline for every call, per
// §6/§4.13.
type Config struct {
	BaseURL      string
	Deadline     time.Duration
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	MaxAttempts  int
}

// Client is a thin wrapper over net/http, grounded on the teacher's
// internal/bitcoin/client.go struct-plus-methods shape (config held as
// a field, each method a single external call that returns its error
// to the caller).
type Client struct {
	cfg    Config
	http   *http.Client
}

// NewClient builds a Client against the given config.
func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg, http: &http.Client{}}
}

// SGTDefinition mirrors one row of the reference catalog's SGT list.
type SGTDefinition struct {
	Value       uint32 `json:"value"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// ExternalRule mirrors one row of the reference catalog's policy list.
type ExternalRule struct {
	SrcSGT uint32 `json:"src_sgt"`
	DstSGT uint32 `json:"dst_sgt"`
	Action string `json:"action"`
}

// ListSGTs fetches the reference catalog's current SGT definitions.
// Non-fatal per §6 — callers treat a failure as "no catalog available
// this cycle", not a fatal error.
func (c *Client) ListSGTs(ctx context.Context) ([]SGTDefinition, error) {
	var out []SGTDefinition
	err := c.doRetried(ctx, http.MethodGet, "/v1/sgts", nil, &out)
	return out, err
}

// ListRules fetches the reference catalog's current policy rules.
func (c *Client) ListRules(ctx context.Context) ([]ExternalRule, error) {
	var out []ExternalRule
	err := c.doRetried(ctx, http.MethodGet, "/v1/rules", nil, &out)
	return out, err
}

// PushRules writes a neutral-IR policy payload to the catalog, when
// write access is enabled.
func (c *Client) PushRules(ctx context.Context, rules []ExternalRule) error {
	return c.doRetried(ctx, http.MethodPost, "/v1/rules", rules, nil)
}

// doRetried performs one HTTP round trip, retrying transient failures
// (network errors, 5xx responses) with exponential backoff (base 1s,
// cap 30s, max 5 attempts by default). A 4xx response is treated as
// permanent and not retried.
func (c *Client) doRetried(ctx context.Context, method, path string, body, out interface{}) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.cfg.BackoffBase
	policy.MaxInterval = c.cfg.BackoffCap
	policy.MaxElapsedTime = 0 // bounded by MaxAttempts via WithMaxRetries, not elapsed time

	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Deadline)
		defer cancel()

		var reqBody io.Reader
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return backoff.Permanent(err)
			}
			reqBody = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(callCtx, method, c.cfg.BaseURL+path, reqBody)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return models.NewError(models.TransientExternal, "catalog request failed", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return models.NewError(models.TransientExternal, fmt.Sprintf("catalog returned %d", resp.StatusCode), nil)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(models.NewError(models.InvalidShape, fmt.Sprintf("catalog returned %d", resp.StatusCode), nil))
		}

		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	attempts := c.cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 5
	}
	return backoff.Retry(operation, backoff.WithMaxRetries(policy, uint64(attempts-1)))
}

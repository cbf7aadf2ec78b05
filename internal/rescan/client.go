// Package rescan triggers compliance rescans against the scanning service
// and reports the pass/fail outcome.
package rescan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pitabwire/util"
)

// ErrUnavailable indicates the scanning service could not be reached. The
// condition is retryable; callers keep their state and try again.
var ErrUnavailable = errors.New("rescan service unavailable")

const (
	// Rescans walk whole sites; they run far longer than ordinary calls.
	defaultTimeout    = 5 * time.Minute
	defaultRetryCount = 2
	defaultRetryWait  = 2 * time.Second
)

// Result is the outcome of one rescan.
type Result struct {
	Passed      bool      `json:"passed"`
	Reason      string    `json:"reason,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Trigger requests rescans for remediated sites.
type Trigger interface {
	Rescan(ctx context.Context, siteRef string) (*Result, error)
}

// Client calls the scanning service over HTTP. Rescan requests are
// idempotent on the producer side; retries are safe.
type Client struct {
	http *resty.Client
}

// Config holds scanning-service connection settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	RetryCount int
}

// NewClient creates a scanning-service client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.RetryCount
	if retries < 0 {
		retries = defaultRetryCount
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(defaultRetryWait).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &Client{http: client}
}

// rescanRequest is the wire request to the scanning service.
type rescanRequest struct {
	SiteReference string `json:"site_reference"`
}

// rescanResponse is the wire response from the scanning service.
type rescanResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Rescan implements Trigger.
func (c *Client) Rescan(ctx context.Context, siteRef string) (*Result, error) {
	log := util.Log(ctx)

	var out rescanResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(rescanRequest{SiteReference: siteRef}).
		SetResult(&out).
		Post("/api/v1/rescans")
	if err != nil {
		log.WithError(err).Warn("rescan request failed", "site", siteRef)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	if resp.StatusCode() >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusAccepted {
		return nil, fmt.Errorf("rescan rejected: status %d: %s",
			resp.StatusCode(), resp.String())
	}

	result := &Result{
		Passed:      out.Status == "pass",
		Reason:      out.Reason,
		CompletedAt: time.Now().UTC(),
	}
	log.Info("rescan completed", "site", siteRef, "passed", result.Passed)
	return result, nil
}

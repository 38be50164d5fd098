// Package dkron talks to the job endpoints of a Dkron scheduler: one list
// call to read every job and one create call per job to write them back.
// Job bodies are passed through untouched.
package dkron

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"dkronbackup/internal/errs"
	"dkronbackup/internal/job"
)

const jobsPath = "/v1/jobs"

// CreateResult is the scheduler's answer to a single create call.
type CreateResult struct {
	StatusCode int
	Reason     string
}

// OK reports whether the scheduler accepted the job.
func (r *CreateResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client reads and writes jobs over the scheduler's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the scheduler at baseURL. The default
// http.Client has no timeout and no retries.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("dkron URL is required")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid dkron URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid dkron URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) jobsURL() string {
	return c.baseURL + jobsPath
}

// ListJobs fetches every job as one snapshot.
func (c *Client) ListJobs(ctx context.Context) (job.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jobsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", errs.ErrTransport, c.jobsURL(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: GET %s returned status %d: %s", errs.ErrProtocol, c.jobsURL(), resp.StatusCode, strings.TrimSpace(string(body)))
	}

	snap, err := job.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", errs.ErrProtocol, c.jobsURL(), err)
	}
	return snap, nil
}

// CreateJob posts a single job. A non-2xx answer is returned as a result,
// not an error; only transport failures are errors.
func (c *Client) CreateJob(ctx context.Context, j job.Job) (*CreateResult, error) {
	body, err := j.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrSerialization, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.jobsURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: POST %s: %w", errs.ErrTransport, c.jobsURL(), err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused for the next job
	io.Copy(io.Discard, resp.Body)

	return &CreateResult{
		StatusCode: resp.StatusCode,
		Reason:     reasonPhrase(resp),
	}, nil
}

// reasonPhrase extracts "Created" from a "201 Created" status line.
func reasonPhrase(resp *http.Response) string {
	reason := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if reason == "" {
		reason = http.StatusText(resp.StatusCode)
	}
	return reason
}

package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/approval"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/engine"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/rules"
)

// TestClient provides HTTP client utilities for testing
type TestClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewTestClient creates a new test HTTP client
func NewTestClient(baseURL string) *TestClient {
	return &TestClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RequestOption configures HTTP requests
type RequestOption func(*http.Request)

// WithHeader adds a header to the request
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// WithQuery adds query parameters
func WithQuery(params map[string]string) RequestOption {
	return func(r *http.Request) {
		q := r.URL.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		r.URL.RawQuery = q.Encode()
	}
}

// Response wraps HTTP response with helpers
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// JSON unmarshals response body into v
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// String returns response body as string
func (r *Response) String() string {
	return string(r.Body)
}

// IsSuccess returns true if status code is 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Get performs HTTP GET request
func (c *TestClient) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, nil, opts...)
}

// Post performs HTTP POST request with JSON body
func (c *TestClient) Post(ctx context.Context, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, body, opts...)
}

// do performs the actual HTTP request
func (c *TestClient) do(ctx context.Context, method, path string, body interface{}, opts ...RequestOption) (*Response, error) {
	fullURL := c.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}

// RecordApproval posts one approval event and returns the recorded copy
func (c *TestClient) RecordApproval(ctx context.Context, ev approval.Event) (*approval.Event, error) {
	resp, err := c.Post(ctx, "/events", ev)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("record approval failed (%d): %s", resp.StatusCode, resp.String())
	}

	var recorded approval.Event
	if err := resp.JSON(&recorded); err != nil {
		return nil, err
	}
	return &recorded, nil
}

// SeedApprovals records a batch of approval events
func (c *TestClient) SeedApprovals(ctx context.Context, events []approval.Event) error {
	for _, ev := range events {
		if _, err := c.RecordApproval(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// Suggestions runs a detection pass and returns the result
func (c *TestClient) Suggestions(ctx context.Context) (*engine.DetectionResult, error) {
	resp, err := c.Get(ctx, "/suggestions")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("detection failed (%d): %s", resp.StatusCode, resp.String())
	}

	var result engine.DetectionResult
	if err := resp.JSON(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Decide posts a verdict for a suggestion and returns what changed
func (c *TestClient) Decide(ctx context.Context, suggestionID string, accept bool) (*engine.DecisionResult, error) {
	resp, err := c.Post(ctx, "/suggestions/"+suggestionID+"/decision", map[string]bool{
		"accept": accept,
	})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("decision failed (%d): %s", resp.StatusCode, resp.String())
	}

	var result engine.DecisionResult
	if err := resp.JSON(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// EngineStatus fetches the aggregate store status
func (c *TestClient) EngineStatus(ctx context.Context) (*engine.Status, error) {
	resp, err := c.Get(ctx, "/status")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("status failed (%d): %s", resp.StatusCode, resp.String())
	}

	var status engine.Status
	if err := resp.JSON(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

// LearnedRules fetches the rule store snapshot
func (c *TestClient) LearnedRules(ctx context.Context) (*rules.Snapshot, error) {
	resp, err := c.Get(ctx, "/rules")
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("rules failed (%d): %s", resp.StatusCode, resp.String())
	}

	var snapshot rules.Snapshot
	if err := resp.JSON(&snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Package client is a small HTTP client for the challenge service,
// including the status polling loop frontends use after submitting.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultPollInterval = 2 * time.Second
	userIDHeader        = "X-User-Id"
)

// Submission is the client-side view of a submission.
type Submission struct {
	ID          string `json:"id"`
	ChallengeID int64  `json:"challenge_id"`
	UserID      string `json:"user_id"`
	Status      string `json:"status"`
	Verdict     string `json:"verdict,omitempty"`
	Output      string `json:"output,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type listData struct {
	Items []Submission `json:"items"`
}

// APIError is a non-success response from the service.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: http %d code %d: %s", e.StatusCode, e.Code, e.Message)
}

// Client talks to the challenge service HTTP API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	pollInterval time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying http.Client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithPollInterval sets how often PollUntilSettled re-reads the list.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// New creates a client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit posts code for a challenge and returns the accepted
// submission. The caller identity travels in the X-User-Id header the
// service-side identity handoff expects, never in the payload.
func (c *Client) Submit(ctx context.Context, challengeID int64, userID, code, idempotencyKey string) (*Submission, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"code": code,
	})
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/api/v1/challenges/%d/submissions", challengeID)
	headers := map[string]string{userIDHeader: userID}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}

	var submission Submission
	if err := c.do(ctx, http.MethodPost, path, headers, payload, &submission); err != nil {
		return nil, err
	}
	return &submission, nil
}

// GetSubmission fetches one submission by id.
func (c *Client) GetSubmission(ctx context.Context, submissionID string) (*Submission, error) {
	var submission Submission
	if err := c.do(ctx, http.MethodGet, "/api/v1/submissions/"+submissionID, nil, nil, &submission); err != nil {
		return nil, err
	}
	return &submission, nil
}

// ListSubmissions fetches the caller's submissions for a challenge,
// newest first.
func (c *Client) ListSubmissions(ctx context.Context, challengeID int64, userID string) ([]Submission, error) {
	path := fmt.Sprintf("/api/v1/challenges/%d/submissions", challengeID)
	var data listData
	if err := c.do(ctx, http.MethodGet, path, map[string]string{userIDHeader: userID}, nil, &data); err != nil {
		return nil, err
	}
	return data.Items, nil
}

// PollUntilSettled re-reads the submission list until no entry is still
// PENDING or RUNNING, then returns the final list. It polls at the
// configured interval and stops early when ctx is done.
func (c *Client) PollUntilSettled(ctx context.Context, challengeID int64, userID string) ([]Submission, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		submissions, err := c.ListSubmissions(ctx, challengeID, userID)
		if err != nil {
			return nil, err
		}
		if settled(submissions) {
			return submissions, nil
		}

		select {
		case <-ctx.Done():
			return submissions, ctx.Err()
		case <-ticker.C:
		}
	}
}

func settled(submissions []Submission) bool {
	for _, submission := range submissions {
		if submission.Status == "PENDING" || submission.Status == "RUNNING" {
			return false
		}
	}
	return true
}

func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body []byte, out interface{}) error {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body failed: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("decode response failed: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data failed: %w", err)
		}
	}
	return nil
}

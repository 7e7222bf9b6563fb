// Package deskflow is a thin HTTP client for the deskflow routing service.
package deskflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string

	// APIKey is sent as a bearer token on every request except health.
	APIKey string

	// Timeout bounds each request. Zero means 30 seconds.
	Timeout time.Duration

	// HTTPClient overrides the underlying client; Timeout is ignored
	// when set.
	HTTPClient *http.Client
}

// Client talks to a deskflow server.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a Client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, errors.New("BaseURL is required")
	}

	hc := config.HTTPClient
	if hc == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		http:    hc,
	}, nil
}

// BaseURL returns the server root the client was configured with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health checks server health. It does not require authentication.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/api/v1/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitIdea runs an idea through the routing pipeline.
func (c *Client) SubmitIdea(ctx context.Context, idea Idea, override *Override) (*IntakeResult, error) {
	var out IntakeResult
	req := intakeRequest{Idea: idea, Override: override}
	if err := c.do(ctx, http.MethodPost, "/api/v1/ideas", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetIdea returns one idea with its routing record and status trail.
func (c *Client) GetIdea(ctx context.Context, id string) (*IdeaDetail, error) {
	var out IdeaDetail
	if err := c.do(ctx, http.MethodGet, "/api/v1/ideas/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListIdeas lists routing records, optionally filtered by status.
func (c *Client) ListIdeas(ctx context.Context, status string) ([]Routing, error) {
	path := "/api/v1/ideas"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var out []Routing
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Rescore re-evaluates a scored idea against the current configuration.
func (c *Client) Rescore(ctx context.Context, ideaID string) (*IntakeResult, error) {
	var out IntakeResult
	path := "/api/v1/ideas/" + url.PathEscape(ideaID) + "/rescore"
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Kill terminally marks an idea. Reason is required.
func (c *Client) Kill(ctx context.Context, ideaID, reason string) (*Routing, error) {
	var out Routing
	path := "/api/v1/ideas/" + url.PathEscape(ideaID) + "/kill"
	if err := c.do(ctx, http.MethodPost, path, killRequest{Reason: reason}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Bump releases an idea's calendar position for a higher-priority item
// and reports where the displaced idea landed.
func (c *Client) Bump(ctx context.Context, ideaID, reason, bumpedBy string) (*IntakeResult, error) {
	var out IntakeResult
	path := "/api/v1/ideas/" + url.PathEscape(ideaID) + "/bump"
	if err := c.do(ctx, http.MethodPost, path, bumpRequest{Reason: reason, BumpedBy: bumpedBy}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Confirm advances a slotted idea to scheduled.
func (c *Client) Confirm(ctx context.Context, ideaID string) (*Routing, error) {
	var out Routing
	path := "/api/v1/ideas/" + url.PathEscape(ideaID) + "/confirm"
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListEvergreen lists a publication's evergreen queue, best first.
func (c *Client) ListEvergreen(ctx context.Context, publicationID string) ([]EvergreenEntry, error) {
	path := "/api/v1/evergreen?publication_id=" + url.QueryEscape(publicationID)
	var out []EvergreenEntry
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PullEvergreen fills a calendar date (YYYY-MM-DD) from the evergreen
// queue. An APIError with status 404 means the queue is empty.
func (c *Client) PullEvergreen(ctx context.Context, publicationID, date, reason string) (*IntakeResult, error) {
	var out IntakeResult
	req := evergreenPullRequest{PublicationID: publicationID, Date: date, Reason: reason}
	if err := c.do(ctx, http.MethodPost, "/api/v1/evergreen/pull", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns the dashboard projections.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Alerts runs the advisory alert scan.
func (c *Client) Alerts(ctx context.Context) ([]Alert, error) {
	var out []Alert
	if err := c.do(ctx, http.MethodGet, "/api/v1/alerts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do sends one authenticated JSON request and decodes the response into
// out. Non-2xx responses are returned as *APIError.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apiErr
	}
	// Best effort: non-problem bodies keep the status-derived defaults.
	var parsed APIError
	if json.Unmarshal(data, &parsed) == nil && parsed.Status != 0 {
		parsed.Status = resp.StatusCode
		return &parsed
	}
	return apiErr
}

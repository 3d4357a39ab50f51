// Package api is the REST collaborator boundary. Every call returns either a
// decoded payload or a *RequestError; no failure here is allowed to escalate
// past the caller that issued the request.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"crawldash/internal/model"
)

// RequestError covers both transport failures and non-success statuses from
// the backend. StatusCode is zero when the request never got a response.
type RequestError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: backend returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

type Client struct {
	session Session
}

func NewClient(session Session) *Client {
	return &Client{session: session}
}

func (c *Client) Session() Session {
	return c.session
}

// AddURL submits a URL for tracking. The backend creates the job in status
// pending and assigns its ID.
func (c *Client) AddURL(ctx context.Context, rawURL string) (model.Job, error) {
	if strings.TrimSpace(rawURL) == "" {
		return model.Job{}, &RequestError{Op: "add url", Err: fmt.Errorf("url is required")}
	}
	var job model.Job
	body := map[string]string{"url": strings.TrimSpace(rawURL)}
	if err := c.do(ctx, "add url", http.MethodPost, "/urls", body, &job); err != nil {
		return model.Job{}, err
	}
	return job, nil
}

// ListURLs fetches one page of job summaries. Pages are 1-indexed.
func (c *Client) ListURLs(ctx context.Context, page, limit int) ([]model.Job, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	path := "/urls?page=" + strconv.Itoa(page) + "&limit=" + strconv.Itoa(limit)
	var jobs []model.Job
	if err := c.do(ctx, "list urls", http.MethodGet, path, nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Analyze asks the backend to (re-)analyze one job. The call is accepted
// asynchronously; the returned record reflects the accepted state and the
// final status arrives via the push channel or the next page fetch.
func (c *Client) Analyze(ctx context.Context, id string) (model.Job, error) {
	var job model.Job
	if err := c.do(ctx, "analyze "+id, http.MethodPost, "/urls/"+id+"/analyze", nil, &job); err != nil {
		return model.Job{}, err
	}
	return job, nil
}

// Delete removes one job from the backend.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "delete "+id, http.MethodDelete, "/urls/"+id, nil, nil)
}

// GetAnalysis fetches the full analysis payload for a completed job.
func (c *Client) GetAnalysis(ctx context.Context, id string) (model.Analysis, error) {
	var analysis model.Analysis
	if err := c.do(ctx, "get analysis "+id, http.MethodGet, "/analyses/"+id, nil, &analysis); err != nil {
		return model.Analysis{}, err
	}
	return analysis, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &RequestError{Op: op, Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.session.BaseURL+path, reader)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range c.session.authHeader() {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.session.HTTPClient.Do(req)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &RequestError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// Package api - API-Methoden des Clients.
// Jede Methode entspricht genau einer Route des Servers.

package api

import (
	"context"
	"net/http"
	"net/url"
)

// Heartbeat checks if the server has started and is responsive; if yes, it
// returns nil, otherwise an error.
func (c *Client) Heartbeat(ctx context.Context) error {
	if err := c.do(ctx, http.MethodHead, "/", nil, nil); err != nil {
		return err
	}
	return nil
}

// Version returns the sandbox server version as a string.
func (c *Client) Version(ctx context.Context) (string, error) {
	var version VersionResponse
	if err := c.do(ctx, http.MethodGet, "/api/version", nil, &version); err != nil {
		return "", err
	}
	return version.Version, nil
}

// CreateSession starts an isolated worker on the server.
func (c *Client) CreateSession(ctx context.Context, req *SessionRequest) (*SessionResponse, error) {
	var resp SessionResponse
	if err := c.do(ctx, http.MethodPost, "/api/sessions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteSession tears down a session and its worker.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, nil)
}

// Forward runs one forward pass. An empty session uses the server's shared default session.
func (c *Client) Forward(ctx context.Context, session string, req *ForwardRequest) (*ForwardResponse, error) {
	path := "/api/forward"
	if session != "" {
		path = "/api/sessions/" + url.PathEscape(session) + "/forward"
	}

	var resp ForwardResponse
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// View derives another layer/head view from existing artifacts without a new pass.
func (c *Client) View(ctx context.Context, req *ViewRequest) (*ViewResponse, error) {
	var resp ViewResponse
	if err := c.do(ctx, http.MethodPost, "/api/view", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Distribution applies temperature and top-k to a logit vector.
func (c *Client) Distribution(ctx context.Context, req *DistributionRequest) (*DistributionResponse, error) {
	var resp DistributionResponse
	if err := c.do(ctx, http.MethodPost, "/api/distribution", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Project reduces vectors to two dimensions.
func (c *Client) Project(ctx context.Context, req *ProjectRequest) (*ProjectResponse, error) {
	var resp ProjectResponse
	if err := c.do(ctx, http.MethodPost, "/api/project", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Export builds the rounded export document and optionally stores it.
func (c *Client) Export(ctx context.Context, req *ExportRequest) (*ExportDocument, error) {
	var resp ExportDocument
	if err := c.do(ctx, http.MethodPost, "/api/export", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListRuns lists stored runs, newest first.
func (c *Client) ListRuns(ctx context.Context) (*ListRunsResponse, error) {
	var resp ListRunsResponse
	if err := c.do(ctx, http.MethodGet, "/api/runs", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetRun fetches one stored run by id.
func (c *Client) GetRun(ctx context.Context, id string) (*ExportDocument, error) {
	var resp ExportDocument
	if err := c.do(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteRun removes a stored run by id or unique id prefix.
func (c *Client) DeleteRun(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/runs/"+url.PathEscape(id), nil, nil)
}

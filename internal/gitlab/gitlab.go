// Package gitlab talks to the GitLab REST API (v4) for branch comparison and
// release tag management.
package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/lucasnoah/shipit/internal/config"
)

// tagNotFound is the message GitLab returns for a missing tag.
const tagNotFound = "404 Tag Not Found"

// APIError is a non-success response from the API.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gitlab %s: HTTP %d: %s", e.Op, e.StatusCode, strings.TrimSpace(e.Body))
}

// Client provides GitLab operations for one project.
type Client struct {
	baseURL   string
	projectID string
	token     string
	webURL    string
	http      *http.Client
}

// NewClient creates a client for the project at baseURL (".../api/v4").
// repo is the host/group/project path used for web links.
func NewClient(baseURL, projectID, token, repo string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		projectID: projectID,
		token:     token,
		webURL:    "https://" + strings.Trim(repo, "/"),
		http:      http.DefaultClient,
	}
}

// NewFromConfig creates a client from the git section of the run config.
func NewFromConfig(g config.Git) *Client {
	base := g.APIURL
	if base == "" {
		base = "https://" + config.RepoHost(g.Repo) + "/api/v4"
	}
	return NewClient(base, g.ProjectID, g.Token, g.Repo)
}

// SetHTTPClient overrides the HTTP client (for testing).
func (c *Client) SetHTTPClient(h *http.Client) {
	c.http = h
}

// do sends a request to a project-relative path and returns status and body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values) (int, []byte, error) {
	u := c.baseURL + "/projects/" + url.PathEscape(c.projectID) + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// DiffCount returns the number of changed files between two refs.
func (c *Client) DiffCount(ctx context.Context, from, to string) (int, error) {
	op := fmt.Sprintf("compare %s...%s", from, to)
	status, body, err := c.do(ctx, http.MethodGet, "/repository/compare", url.Values{
		"from":     {from},
		"to":       {to},
		"straight": {"true"},
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusOK {
		return 0, &APIError{Op: op, StatusCode: status, Body: string(body)}
	}

	var cmp struct {
		Diffs []json.RawMessage `json:"diffs"`
	}
	if err := json.Unmarshal(body, &cmp); err != nil {
		return 0, fmt.Errorf("parse compare JSON: %w", err)
	}
	return len(cmp.Diffs), nil
}

// MergeRequestURL returns the web link that opens a new merge request from
// source into target.
func (c *Client) MergeRequestURL(source, target string) string {
	id := url.QueryEscape(c.projectID)
	return fmt.Sprintf("%s/-/merge_requests/new?merge_request[source_project_id]=%s&merge_request[source_branch]=%s&merge_request[target_project_id]=%s&merge_request[target_branch]=%s",
		c.webURL, id, url.QueryEscape(source), id, url.QueryEscape(target))
}

type tag struct {
	Name string `json:"name"`
}

type message struct {
	Message string `json:"message"`
}

// FindTag reports whether the tag exists.
func (c *Client) FindTag(ctx context.Context, name string) (bool, error) {
	op := "find tag " + name
	status, body, err := c.do(ctx, http.MethodGet, "/repository/tags/"+url.PathEscape(name), nil)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	switch status {
	case http.StatusOK:
		var t tag
		if err := json.Unmarshal(body, &t); err != nil {
			return false, fmt.Errorf("parse tag JSON: %w", err)
		}
		if t.Name != name {
			return false, fmt.Errorf("%s: response names tag %q", op, t.Name)
		}
		return true, nil
	case http.StatusNotFound:
		var m message
		if json.Unmarshal(body, &m) == nil && m.Message == tagNotFound {
			return false, nil
		}
	}
	return false, &APIError{Op: op, StatusCode: status, Body: string(body)}
}

// CreateTag creates a lightweight tag at ref.
func (c *Client) CreateTag(ctx context.Context, name, ref string) error {
	op := "create tag " + name
	status, body, err := c.do(ctx, http.MethodPost, "/repository/tags", url.Values{
		"tag_name": {name},
		"ref":      {ref},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return &APIError{Op: op, StatusCode: status, Body: string(body)}
	}

	var t tag
	if err := json.Unmarshal(body, &t); err != nil {
		return fmt.Errorf("parse tag JSON: %w", err)
	}
	if t.Name != name {
		return fmt.Errorf("%s: response names tag %q", op, t.Name)
	}
	return nil
}

// DeleteTag removes a tag.
func (c *Client) DeleteTag(ctx context.Context, name string) error {
	op := "delete tag " + name
	status, body, err := c.do(ctx, http.MethodDelete, "/repository/tags/"+url.PathEscape(name), nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch status {
	case http.StatusOK, http.StatusAccepted, http.StatusNoContent:
		return nil
	}
	return &APIError{Op: op, StatusCode: status, Body: string(bytes.TrimSpace(body))}
}

// RecreateTag points name at ref: an existing tag is deleted first, then the
// tag is created. Running it twice leaves the same state.
func (c *Client) RecreateTag(ctx context.Context, name, ref string) error {
	exists, err := c.FindTag(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		if err := c.DeleteTag(ctx, name); err != nil {
			return err
		}
	}
	return c.CreateTag(ctx, name, ref)
}

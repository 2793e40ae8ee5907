// Package devops wraps the Azure DevOps REST API. Work item creation is a
// multi-step write: the API rejects workflow states at creation time and
// parent links in the same call as field creation, so Create issues up to
// three requests per item.
package devops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"boardfill/internal/domain"
)

const apiVersion = "7.1"

// StatusError is a non-2xx response from the backend. The body is truncated
// so per-item failure lines stay readable.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("azure devops: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("azure devops: HTTP %d: %s", e.StatusCode, e.Body)
}

// Options configure a Client.
type Options struct {
	BaseURL      string
	Organization string
	Project      string // default project for operations
	PAT          string
	HTTPClient   *http.Client
}

// Client talks to one Azure DevOps organization.
type Client struct {
	baseURL       string
	organization  string
	project       string
	pat           string
	httpClient    *http.Client
	correlationID string
}

// New builds a client. PAT auth uses the basic scheme with an empty user.
func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://dev.azure.com"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:       baseURL,
		organization:  opts.Organization,
		project:       opts.Project,
		pat:           opts.PAT,
		httpClient:    httpClient,
		correlationID: uuid.NewString(),
	}
}

func (c *Client) do(ctx context.Context, method, rawURL string, body any, contentType string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth("", c.pat)
	req.Header.Set("X-Correlation-Id", c.correlationID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 300)}
	}
	return raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// TestConnection lists projects to verify the credential works.
func (c *Client) TestConnection(ctx context.Context) error {
	u := fmt.Sprintf("%s/%s/_apis/projects?api-version=%s", c.baseURL, c.organization, apiVersion)
	_, err := c.do(ctx, http.MethodGet, u, nil, "")
	return err
}

type workItemResponse struct {
	ID     int `json:"id"`
	Fields struct {
		Title string `json:"System.Title"`
	} `json:"fields"`
	Links struct {
		HTML struct {
			Href string `json:"href"`
		} `json:"html"`
	} `json:"_links"`
	URL string `json:"url"`
}

// Create runs the three-step creation protocol for a work item spec:
//
//  1. POST the JSON Patch document without the workflow state.
//  2. PATCH the state field if one was requested.
//  3. PATCH a hierarchy relation to the parent if one was requested,
//     referencing the parent by its API URL, not the display URL.
//
// A step-1 failure aborts the creation. Failures in steps 2 or 3 are returned
// as the creation's error even though the item already exists remotely with
// an assigned id; the caller never learns that id, so the next run recreates
// the item (see the ledger contract).
func (c *Client) Create(ctx context.Context, spec domain.WorkItemSpec) (domain.CreatedWorkItem, error) {
	project := spec.Project
	if project == "" {
		project = c.project
	}
	if project == "" {
		return domain.CreatedWorkItem{}, fmt.Errorf("project not specified")
	}

	createURL := fmt.Sprintf("%s/%s/%s/_apis/wit/workitems/$%s?api-version=%s",
		c.baseURL, c.organization, url.PathEscape(project), url.PathEscape(string(spec.Type)), apiVersion)
	raw, err := c.do(ctx, http.MethodPost, createURL, spec.PatchOps(false), "application/json-patch+json")
	if err != nil {
		return domain.CreatedWorkItem{}, fmt.Errorf("create %s: %w", strings.ToLower(string(spec.Type)), err)
	}
	var item workItemResponse
	if err := json.Unmarshal(raw, &item); err != nil {
		return domain.CreatedWorkItem{}, fmt.Errorf("decode create response: %w", err)
	}

	patchURL := fmt.Sprintf("%s/%s/%s/_apis/wit/workitems/%d?api-version=%s",
		c.baseURL, c.organization, url.PathEscape(project), item.ID, apiVersion)

	if spec.State != "" {
		ops := []domain.PatchOp{{Op: "add", Path: domain.FieldState, Value: spec.State}}
		if _, err := c.do(ctx, http.MethodPatch, patchURL, ops, "application/json-patch+json"); err != nil {
			return domain.CreatedWorkItem{}, fmt.Errorf("set state on #%d: %w", item.ID, err)
		}
	}

	if spec.ParentID != 0 {
		parentURL := fmt.Sprintf("%s/%s/_apis/wit/workitems/%d", c.baseURL, c.organization, spec.ParentID)
		ops := []domain.PatchOp{{
			Op:   "add",
			Path: "/relations/-",
			Value: map[string]string{
				"rel": domain.RelationParent,
				"url": parentURL,
			},
		}}
		if _, err := c.do(ctx, http.MethodPatch, patchURL, ops, "application/json-patch+json"); err != nil {
			return domain.CreatedWorkItem{}, fmt.Errorf("link #%d to parent #%d: %w", item.ID, spec.ParentID, err)
		}
	}

	return domain.CreatedWorkItem{
		ID:      item.ID,
		URL:     item.Links.HTML.Href,
		Title:   item.Fields.Title,
		Project: project,
	}, nil
}

// DeleteWorkItem soft-deletes a work item (it moves to the recycle bin).
func (c *Client) DeleteWorkItem(ctx context.Context, id int) error {
	project := c.project
	if project == "" {
		return fmt.Errorf("project not specified")
	}
	u := fmt.Sprintf("%s/%s/%s/_apis/wit/workitems/%d?api-version=%s",
		c.baseURL, c.organization, url.PathEscape(project), id, apiVersion)
	_, err := c.do(ctx, http.MethodDelete, u, nil, "")
	return err
}

type commitsResponse struct {
	Value []struct {
		CommitID string `json:"commitId"`
		Comment  string `json:"comment"`
		Author   struct {
			Email string `json:"email"`
			Date  string `json:"date"`
		} `json:"author"`
	} `json:"value"`
}

// Commits lists commits in a repository, optionally filtered by author and a
// date window. The search criteria use the backend's US date format.
func (c *Client) Commits(ctx context.Context, repository, project, author string, from, to time.Time) ([]domain.Commit, error) {
	if project == "" {
		project = c.project
	}
	if project == "" {
		return nil, fmt.Errorf("project not specified")
	}
	q := url.Values{}
	q.Set("api-version", apiVersion)
	if author != "" {
		q.Set("searchCriteria.author", author)
	}
	if !from.IsZero() {
		q.Set("searchCriteria.fromDate", from.Format("01/02/2006")+" 12:00:00 AM")
	}
	if !to.IsZero() {
		q.Set("searchCriteria.toDate", to.Format("01/02/2006")+" 11:59:59 PM")
	}
	u := fmt.Sprintf("%s/%s/%s/_apis/git/repositories/%s/commits?%s",
		c.baseURL, c.organization, url.PathEscape(project), url.PathEscape(repository), q.Encode())
	raw, err := c.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return nil, err
	}
	var resp commitsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode commits response: %w", err)
	}
	commits := make([]domain.Commit, 0, len(resp.Value))
	for _, item := range resp.Value {
		when, err := time.Parse(time.RFC3339, item.Author.Date)
		if err != nil {
			return nil, fmt.Errorf("commit %s: bad author date %q", item.CommitID, item.Author.Date)
		}
		commits = append(commits, domain.Commit{
			ID:         item.CommitID,
			Message:    item.Comment,
			Author:     item.Author.Email,
			Date:       when,
			Repository: repository,
		})
	}
	return commits, nil
}

// Repository is one git repository in a project.
type Repository struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Repositories lists the git repositories of a project.
func (c *Client) Repositories(ctx context.Context, project string) ([]Repository, error) {
	if project == "" {
		project = c.project
	}
	if project == "" {
		return nil, fmt.Errorf("project not specified")
	}
	u := fmt.Sprintf("%s/%s/%s/_apis/git/repositories?api-version=%s",
		c.baseURL, c.organization, url.PathEscape(project), apiVersion)
	raw, err := c.do(ctx, http.MethodGet, u, nil, "")
	if err != nil {
		return nil, err
	}
	var resp struct {
		Value []Repository `json:"value"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode repositories response: %w", err)
	}
	return resp.Value, nil
}

package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/justynbrt/ghoo/internal/errors"
)

// NewClient creates a new REST client for one repository.
func NewClient(token, owner, repo string) *Client {
	return &Client{
		Token:   token,
		Owner:   owner,
		Repo:    repo,
		BaseURL: DefaultAPIEndpoint,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	out := *c
	out.HTTPClient = httpClient
	return &out
}

// WithBaseURL returns a new client with a custom base URL (for testing or
// GitHub Enterprise).
func (c *Client) WithBaseURL(baseURL string) *Client {
	out := *c
	out.BaseURL = baseURL
	return &out
}

// repoPath returns the "owner/repo" path segment.
func (c *Client) repoPath() string {
	return c.Owner + "/" + c.Repo
}

// buildURL constructs a full API URL.
func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + path
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}
	return u
}

// doRequest performs one HTTP request with authentication. Only GETs are
// retried (429 and 5xx, honoring Retry-After); mutations are surfaced to
// the caller on first failure so side effects are never duplicated.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body interface{}) ([]byte, http.Header, error) {
	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, nil, errors.Wrap(errors.CodeInternal, err, "marshaling request body: %v", err)
		}
	}

	retriable := method == http.MethodGet
	attempts := 1
	if retriable {
		attempts = MaxRetries + 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		var reqBody io.Reader
		if jsonBody != nil {
			reqBody = bytes.NewReader(jsonBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
		if err != nil {
			return nil, nil, errors.Wrap(errors.CodeInternal, err, "creating request: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.Token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			lastErr = classifyTransportError(err)
			if !retriable {
				return nil, nil, lastErr
			}
			continue
		}

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
		_ = resp.Body.Close()
		if err != nil {
			lastErr = errors.Wrap(errors.CodeNetworkError, err, "reading response: %v", err)
			if !retriable {
				return nil, nil, lastErr
			}
			continue
		}

		if transient(resp.StatusCode) && retriable && attempt < attempts-1 {
			lastErr = errors.New(errors.CodeRateLimited, "transient status %d from %s", resp.StatusCode, urlStr)
			select {
			case <-ctx.Done():
				return nil, nil, errors.Wrap(errors.CodeTimeout, ctx.Err(), "request canceled: %v", ctx.Err())
			case <-time.After(retryDelay(resp.Header, attempt)):
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, nil, classifyStatus(resp.StatusCode, respBody)
		}
		return respBody, resp.Header, nil
	}

	return nil, nil, errors.Wrap(errors.CodeRateLimited, lastErr, "max retries (%d) exceeded: %v", MaxRetries, lastErr)
}

// transient reports whether a status code is worth retrying on a GET.
func transient(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// retryDelay picks the backoff for one retry, honoring Retry-After.
func retryDelay(headers http.Header, attempt int) time.Duration {
	if ra := headers.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return RetryDelay * time.Duration(1<<attempt)
}

// classifyTransportError maps connection-level failures to the taxonomy.
func classifyTransportError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "Client.Timeout") {
		return errors.Wrap(errors.CodeTimeout, err, "request timed out: %v", err)
	}
	return errors.Wrap(errors.CodeNetworkError, err, "request failed: %v", err)
}

// classifyStatus maps non-2xx REST responses to the taxonomy.
func classifyStatus(status int, body []byte) error {
	detail := restErrorDetail(body)
	switch status {
	case http.StatusUnauthorized:
		return errors.New(errors.CodeInvalidCredential, "authentication failed: %s", detail).
			WithHint("check that the token in GITHUB_TOKEN is valid and has not expired")
	case http.StatusForbidden:
		return errors.New(errors.CodeForbidden, "forbidden: %s", detail)
	case http.StatusNotFound:
		return errors.New(errors.CodeIssueNotFound, "not found: %s", detail)
	case http.StatusTooManyRequests:
		return errors.New(errors.CodeRateLimited, "rate limited: %s", detail)
	}
	if status >= 500 {
		return errors.New(errors.CodeNetworkError, "server error (status %d): %s", status, detail)
	}
	return errors.New(errors.CodeNetworkError, "API error (status %d): %s", status, detail)
}

// restErrorDetail pulls the "message" field out of a REST error body.
func restErrorDetail(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		s = "(empty response)"
	}
	return s
}

// GetIssue retrieves a single issue by number.
func (c *Client) GetIssue(ctx context.Context, number int) (*Issue, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching issue #%d: %w", number, err)
	}
	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "parsing issue response: %v", err)
	}
	return &issue, nil
}

// CreateIssueRequest carries the optional attributes of a new issue.
type CreateIssueRequest struct {
	Title     string   `json:"title"`
	Body      string   `json:"body,omitempty"`
	Labels    []string `json:"labels,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
	Milestone int      `json:"milestone,omitempty"` // milestone number
}

// CreateIssue creates a new issue.
func (c *Client) CreateIssue(ctx context.Context, req CreateIssueRequest) (*Issue, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, req)
	if err != nil {
		return nil, fmt.Errorf("creating issue: %w", err)
	}
	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "parsing create response: %v", err)
	}
	return &issue, nil
}

// UpdateIssueBody replaces an issue's body.
func (c *Client) UpdateIssueBody(ctx context.Context, number int, newBody string) (*Issue, error) {
	return c.patchIssue(ctx, number, map[string]interface{}{"body": newBody})
}

// CloseIssue flips the issue's open/closed flag to closed. Closing an
// already-closed issue succeeds, which keeps rollback idempotent.
func (c *Client) CloseIssue(ctx context.Context, number int) (*Issue, error) {
	return c.patchIssue(ctx, number, map[string]interface{}{"state": "closed"})
}

func (c *Client) patchIssue(ctx context.Context, number int, updates map[string]interface{}) (*Issue, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPatch, urlStr, updates)
	if err != nil {
		return nil, fmt.Errorf("updating issue #%d: %w", number, err)
	}
	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "parsing update response: %v", err)
	}
	return &issue, nil
}

// ListLabels retrieves the repository's labels (first 100; ghoo manages a
// fixed, small label vocabulary).
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/labels", map[string]string{"per_page": "100"})
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("listing labels: %w", err)
	}
	var labels []Label
	if err := json.Unmarshal(respBody, &labels); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "parsing labels response: %v", err)
	}
	return labels, nil
}

// CreateLabel creates a repository label.
func (c *Client) CreateLabel(ctx context.Context, name, color, description string) (*Label, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/labels", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, map[string]string{
		"name":        name,
		"color":       color,
		"description": description,
	})
	if err != nil {
		return nil, fmt.Errorf("creating label %q: %w", name, err)
	}
	var label Label
	if err := json.Unmarshal(respBody, &label); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "parsing label response: %v", err)
	}
	return &label, nil
}

// AddLabels adds labels to an issue, keeping existing ones.
func (c *Client) AddLabels(ctx context.Context, number int, names []string) error {
	urlStr := c.buildURL(fmt.Sprintf("/repos/%s/issues/%d/labels", c.repoPath(), number), nil)
	_, _, err := c.doRequest(ctx, http.MethodPost, urlStr, map[string][]string{"labels": names})
	if err != nil {
		return fmt.Errorf("adding labels to #%d: %w", number, err)
	}
	return nil
}

// RemoveLabel removes one label from an issue. A 404 (label not on the
// issue) is tolerated so status swaps stay idempotent.
func (c *Client) RemoveLabel(ctx context.Context, number int, name string) error {
	urlStr := c.buildURL(fmt.Sprintf("/repos/%s/issues/%d/labels/%s", c.repoPath(), number, url.PathEscape(name)), nil)
	_, _, err := c.doRequest(ctx, http.MethodDelete, urlStr, nil)
	if err != nil {
		if errors.IsCode(err, errors.CodeIssueNotFound) {
			return nil
		}
		return fmt.Errorf("removing label %q from #%d: %w", name, number, err)
	}
	return nil
}

// SetLabels replaces the full label set of an issue in one call.
func (c *Client) SetLabels(ctx context.Context, number int, names []string) error {
	urlStr := c.buildURL(fmt.Sprintf("/repos/%s/issues/%d/labels", c.repoPath(), number), nil)
	_, _, err := c.doRequest(ctx, http.MethodPut, urlStr, map[string][]string{"labels": names})
	if err != nil {
		return fmt.Errorf("setting labels on #%d: %w", number, err)
	}
	return nil
}

// AddAssignees assigns users to an issue.
func (c *Client) AddAssignees(ctx context.Context, number int, logins []string) error {
	urlStr := c.buildURL(fmt.Sprintf("/repos/%s/issues/%d/assignees", c.repoPath(), number), nil)
	_, _, err := c.doRequest(ctx, http.MethodPost, urlStr, map[string][]string{"assignees": logins})
	if err != nil {
		return fmt.Errorf("assigning %v to #%d: %w", logins, number, err)
	}
	return nil
}

// CreateComment posts a comment on an issue.
func (c *Client) CreateComment(ctx context.Context, number int, commentBody string) (*Comment, error) {
	urlStr := c.buildURL(fmt.Sprintf("/repos/%s/issues/%d/comments", c.repoPath(), number), nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, map[string]string{"body": commentBody})
	if err != nil {
		return nil, fmt.Errorf("commenting on #%d: %w", number, err)
	}
	var comment Comment
	if err := json.Unmarshal(respBody, &comment); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "parsing comment response: %v", err)
	}
	return &comment, nil
}

// ListMilestones retrieves milestones in any state, open or closed (first
// 100).
func (c *Client) ListMilestones(ctx context.Context) ([]Milestone, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/milestones", map[string]string{"state": "all", "per_page": "100"})
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("listing milestones: %w", err)
	}
	var milestones []Milestone
	if err := json.Unmarshal(respBody, &milestones); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "parsing milestones response: %v", err)
	}
	return milestones, nil
}

// CreateMilestone creates a milestone with the given title.
func (c *Client) CreateMilestone(ctx context.Context, title, description string) (*Milestone, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/milestones", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodPost, urlStr, map[string]string{
		"title":       title,
		"description": description,
	})
	if err != nil {
		return nil, fmt.Errorf("creating milestone %q: %w", title, err)
	}
	var milestone Milestone
	if err := json.Unmarshal(respBody, &milestone); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "parsing milestone response: %v", err)
	}
	return &milestone, nil
}

// SetMilestone attaches an issue to a milestone by number.
func (c *Client) SetMilestone(ctx context.Context, number, milestone int) (*Issue, error) {
	return c.patchIssue(ctx, number, map[string]interface{}{"milestone": milestone})
}

// GetAuthenticatedUser resolves the principal the token belongs to.
func (c *Client) GetAuthenticatedUser(ctx context.Context) (*User, error) {
	urlStr := c.buildURL("/user", nil)
	respBody, _, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("resolving authenticated user: %w", err)
	}
	var user User
	if err := json.Unmarshal(respBody, &user); err != nil {
		return nil, errors.Wrap(errors.CodeInternal, err, "parsing user response: %v", err)
	}
	return &user, nil
}

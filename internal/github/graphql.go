package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/justynbrt/ghoo/internal/errors"
)

// GraphQLClient talks to the graph-query API for the features REST does not
// cover: sub-issue edges, native issue types, and project-board fields.
type GraphQLClient struct {
	Token      string
	Endpoint   string
	HTTPClient *http.Client
}

// NewGraphQLClient creates a GraphQL client.
func NewGraphQLClient(token string) *GraphQLClient {
	return &GraphQLClient{
		Token:    token,
		Endpoint: DefaultGraphQLEndpoint,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithEndpoint returns a client pointed at a custom endpoint (tests).
func (g *GraphQLClient) WithEndpoint(endpoint string) *GraphQLClient {
	out := *g
	out.Endpoint = endpoint
	return &out
}

// WithHTTPClient returns a client with a custom HTTP client.
func (g *GraphQLClient) WithHTTPClient(httpClient *http.Client) *GraphQLClient {
	out := *g
	out.HTTPClient = httpClient
	return &out
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

// execute posts one query and decodes data into out. A rate-limited request
// is attempted at most MaxRetries times in total, with exponential backoff
// between attempts, honoring Retry-After. Every other failure is classified
// and returned immediately.
func (g *GraphQLClient) execute(ctx context.Context, query string, vars map[string]interface{}, out interface{}) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "marshaling query: %v", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = RetryDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, MaxRetries-1), ctx)

	var data json.RawMessage
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(errors.Wrap(errors.CodeInternal, err, "creating request: %v", err))
		}
		req.Header.Set("Authorization", "Bearer "+g.Token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(FeatureFlagHeader, FeatureFlagValue)

		resp, err := g.HTTPClient.Do(req)
		if err != nil {
			return backoff.Permanent(classifyTransportError(err))
		}
		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
		_ = resp.Body.Close()
		if err != nil {
			return backoff.Permanent(errors.Wrap(errors.CodeNetworkError, err, "reading response: %v", err))
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
					select {
					case <-ctx.Done():
						return backoff.Permanent(errors.Wrap(errors.CodeTimeout, ctx.Err(), "request canceled: %v", ctx.Err()))
					case <-time.After(time.Duration(secs) * time.Second):
					}
				}
			}
			return errors.New(errors.CodeRateLimited, "graph API rate limited")
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(classifyGraphStatus(resp.StatusCode, respBody))
		}

		var parsed graphQLResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return backoff.Permanent(errors.Wrap(errors.CodeInternal, err, "parsing graph response: %v", err))
		}
		if len(parsed.Errors) > 0 {
			return backoff.Permanent(classifyGraphErrors(parsed.Errors))
		}
		data = parsed.Data
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return err
	}
	if out != nil && data != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return errors.Wrap(errors.CodeInternal, err, "decoding graph data: %v", err)
		}
	}
	return nil
}

// classifyGraphStatus maps non-200 GraphQL responses.
func classifyGraphStatus(status int, body []byte) error {
	detail := restErrorDetail(body)
	switch status {
	case http.StatusUnauthorized:
		return errors.New(errors.CodeInvalidCredential, "graph authentication failed: %s", detail).
			WithHint("check that the token in GITHUB_TOKEN is valid and has not expired")
	case http.StatusForbidden:
		if looksLikeFeatureDenial(detail) {
			return errors.FeatureUnavailable(errors.FeatureSubIssues)
		}
		return errors.New(errors.CodeForbidden, "graph access forbidden: %s", detail)
	}
	if status >= 500 {
		return errors.New(errors.CodeNetworkError, "graph server error (status %d): %s", status, detail)
	}
	return errors.New(errors.CodeNetworkError, "graph API error (status %d): %s", status, detail)
}

// classifyGraphErrors folds a GraphQL error array into one taxonomy error.
// Syntax errors are programmer bugs and fail hard.
func classifyGraphErrors(errs []graphQLError) error {
	var messages []string
	for _, e := range errs {
		messages = append(messages, e.Message)
		switch strings.ToUpper(e.Type) {
		case "NOT_FOUND":
			return errors.New(errors.CodeIssueNotFound, "graph: %s", e.Message)
		case "FORBIDDEN", "INSUFFICIENT_SCOPES":
			return errors.New(errors.CodeForbidden, "graph: %s", e.Message)
		case "RATE_LIMITED":
			return errors.New(errors.CodeRateLimited, "graph: %s", e.Message)
		}
		if looksLikeFeatureDenial(e.Message) {
			return &unknownFieldError{message: e.Message}
		}
	}
	joined := strings.Join(messages, "; ")
	if strings.Contains(strings.ToLower(joined), "parse error") ||
		strings.Contains(strings.ToLower(joined), "syntax error") {
		return errors.New(errors.CodeInternal, "malformed graph query: %s", joined)
	}
	return errors.New(errors.CodeNetworkError, "graph query failed: %s", joined)
}

// looksLikeFeatureDenial spots the messages the service emits when a
// preview feature is absent from a repository or plan.
func looksLikeFeatureDenial(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range []string{
		"doesn't exist on type",
		"does not exist on type",
		"unknown field",
		"is not available",
		"feature is disabled",
		"not accessible by",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// unknownFieldError marks a schema-level denial whose feature tag only the
// calling operation knows. featureErr pins the tag on its way out.
type unknownFieldError struct {
	message string
}

func (e *unknownFieldError) Error() string { return e.message }

// featureErr rewrites unknown-field denials as FeatureUnavailable(feature),
// leaving every other classification untouched.
func featureErr(err error, feature string) error {
	if err == nil {
		return nil
	}
	var unknown *unknownFieldError
	if errorsAs(err, &unknown) {
		return errors.FeatureUnavailable(feature)
	}
	if errors.IsCode(err, errors.CodeFeatureUnavailable) && errors.FeatureOf(err) != feature {
		return errors.FeatureUnavailable(feature)
	}
	return err
}

// errorsAs is a local wrapper to keep the stdlib errors package out of this
// file's import block.
func errorsAs(err error, target interface{}) bool {
	for err != nil {
		if u, ok := err.(*unknownFieldError); ok {
			if t, ok := target.(**unknownFieldError); ok {
				*t = u
				return true
			}
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// ProbeSubIssues issues the minimal query that exercises the sub-issues
// schema. Success means the feature is live for this repository.
func (g *GraphQLClient) ProbeSubIssues(ctx context.Context, owner, repo string) error {
	const query = `query($owner: String!, $repo: String!) {
	  repository(owner: $owner, name: $repo) {
	    issues(first: 1) {
	      nodes {
	        subIssues(first: 1) { totalCount }
	      }
	    }
	  }
	}`
	err := g.execute(ctx, query, map[string]interface{}{"owner": owner, "repo": repo}, nil)
	return featureErr(err, errors.FeatureSubIssues)
}

// ResolveNodeID translates a numeric issue reference to its opaque node ID.
func (g *GraphQLClient) ResolveNodeID(ctx context.Context, owner, repo string, number int) (string, error) {
	const query = `query($owner: String!, $repo: String!, $number: Int!) {
	  repository(owner: $owner, name: $repo) {
	    issue(number: $number) { id }
	  }
	}`
	var data struct {
		Repository struct {
			Issue *struct {
				ID string `json:"id"`
			} `json:"issue"`
		} `json:"repository"`
	}
	err := g.execute(ctx, query, map[string]interface{}{
		"owner": owner, "repo": repo, "number": number,
	}, &data)
	if err != nil {
		return "", fmt.Errorf("resolving node ID for #%d: %w", number, err)
	}
	if data.Repository.Issue == nil {
		return "", errors.New(errors.CodeIssueNotFound, "issue #%d not found in %s/%s", number, owner, repo)
	}
	return data.Repository.Issue.ID, nil
}

// GetViewerLogin resolves the authenticated principal via the graph API.
func (g *GraphQLClient) GetViewerLogin(ctx context.Context) (string, error) {
	var data struct {
		Viewer struct {
			Login string `json:"login"`
		} `json:"viewer"`
	}
	if err := g.execute(ctx, `query { viewer { login } }`, nil, &data); err != nil {
		return "", fmt.Errorf("resolving viewer: %w", err)
	}
	return data.Viewer.Login, nil
}

// GetRepositoryID resolves a repository's node ID.
func (g *GraphQLClient) GetRepositoryID(ctx context.Context, owner, repo string) (string, error) {
	const query = `query($owner: String!, $repo: String!) {
	  repository(owner: $owner, name: $repo) { id }
	}`
	var data struct {
		Repository *struct {
			ID string `json:"id"`
		} `json:"repository"`
	}
	err := g.execute(ctx, query, map[string]interface{}{"owner": owner, "repo": repo}, &data)
	if err != nil {
		return "", fmt.Errorf("resolving repository %s/%s: %w", owner, repo, err)
	}
	if data.Repository == nil {
		return "", errors.New(errors.CodeIssueNotFound, "repository %s/%s not found", owner, repo)
	}
	return data.Repository.ID, nil
}

// AddSubIssueEdge links child under parent with a native sub-issue edge.
func (g *GraphQLClient) AddSubIssueEdge(ctx context.Context, parentNodeID, childNodeID string) error {
	const mutation = `mutation($parentId: ID!, $childId: ID!) {
	  addSubIssue(input: { issueId: $parentId, subIssueId: $childId }) {
	    issue { id }
	  }
	}`
	err := g.execute(ctx, mutation, map[string]interface{}{
		"parentId": parentNodeID, "childId": childNodeID,
	}, nil)
	return featureErr(err, errors.FeatureSubIssues)
}

// RemoveSubIssueEdge unlinks child from parent.
func (g *GraphQLClient) RemoveSubIssueEdge(ctx context.Context, parentNodeID, childNodeID string) error {
	const mutation = `mutation($parentId: ID!, $childId: ID!) {
	  removeSubIssue(input: { issueId: $parentId, subIssueId: $childId }) {
	    issue { id }
	  }
	}`
	err := g.execute(ctx, mutation, map[string]interface{}{
		"parentId": parentNodeID, "childId": childNodeID,
	}, nil)
	return featureErr(err, errors.FeatureSubIssues)
}

// ListIssueTypes returns the repository's native issue types as a
// name → node-ID map (names lowercased for lookup).
func (g *GraphQLClient) ListIssueTypes(ctx context.Context, owner, repo string) (map[string]string, error) {
	const query = `query($owner: String!, $repo: String!) {
	  repository(owner: $owner, name: $repo) {
	    issueTypes(first: 25) {
	      nodes { id name }
	    }
	  }
	}`
	var data struct {
		Repository struct {
			IssueTypes struct {
				Nodes []struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"nodes"`
			} `json:"issueTypes"`
		} `json:"repository"`
	}
	err := g.execute(ctx, query, map[string]interface{}{"owner": owner, "repo": repo}, &data)
	if err != nil {
		return nil, featureErr(err, errors.FeatureIssueTypes)
	}
	out := make(map[string]string, len(data.Repository.IssueTypes.Nodes))
	for _, n := range data.Repository.IssueTypes.Nodes {
		out[strings.ToLower(n.Name)] = n.ID
	}
	return out, nil
}

// SetIssueType assigns a native issue type to an existing issue.
func (g *GraphQLClient) SetIssueType(ctx context.Context, issueNodeID, typeID string) error {
	const mutation = `mutation($issueId: ID!, $typeId: ID!) {
	  updateIssueIssueType(input: { issueId: $issueId, issueTypeId: $typeId }) {
	    issue { id }
	  }
	}`
	err := g.execute(ctx, mutation, map[string]interface{}{
		"issueId": issueNodeID, "typeId": typeID,
	}, nil)
	return featureErr(err, errors.FeatureIssueTypes)
}

// CreatedIssue is the result of a typed graph-side creation.
type CreatedIssue struct {
	NodeID string
	Number int
	URL    string
}

// CreateIssueWithType creates an issue with a native type in one mutation.
func (g *GraphQLClient) CreateIssueWithType(ctx context.Context, repoNodeID, title, issueBody, typeID string) (*CreatedIssue, error) {
	const mutation = `mutation($repoId: ID!, $title: String!, $body: String, $typeId: ID) {
	  createIssue(input: { repositoryId: $repoId, title: $title, body: $body, issueTypeId: $typeId }) {
	    issue { id number url }
	  }
	}`
	var data struct {
		CreateIssue struct {
			Issue struct {
				ID     string `json:"id"`
				Number int    `json:"number"`
				URL    string `json:"url"`
			} `json:"issue"`
		} `json:"createIssue"`
	}
	err := g.execute(ctx, mutation, map[string]interface{}{
		"repoId": repoNodeID, "title": title, "body": issueBody, "typeId": typeID,
	}, &data)
	if err != nil {
		return nil, featureErr(err, errors.FeatureIssueTypes)
	}
	return &CreatedIssue{
		NodeID: data.CreateIssue.Issue.ID,
		Number: data.CreateIssue.Issue.Number,
		URL:    data.CreateIssue.Issue.URL,
	}, nil
}

// IssueNode is the hierarchy view of one issue.
type IssueNode struct {
	NodeID   string
	Number   int
	Title    string
	Closed   bool
	TypeName string
	Parent   *IssueNode
	Children []IssueNode
}

// GetIssueWithChildren fetches an issue's native parent and children.
func (g *GraphQLClient) GetIssueWithChildren(ctx context.Context, nodeID string) (*IssueNode, error) {
	const query = `query($id: ID!) {
	  node(id: $id) {
	    ... on Issue {
	      id number title closed
	      issueType { name }
	      parent { id number title closed issueType { name } }
	      subIssues(first: 100) {
	        nodes { id number title closed issueType { name } }
	      }
	    }
	  }
	}`
	type wireIssue struct {
		ID        string `json:"id"`
		Number    int    `json:"number"`
		Title     string `json:"title"`
		Closed    bool   `json:"closed"`
		IssueType *struct {
			Name string `json:"name"`
		} `json:"issueType"`
	}
	var data struct {
		Node *struct {
			wireIssue
			Parent    *wireIssue `json:"parent"`
			SubIssues struct {
				Nodes []wireIssue `json:"nodes"`
			} `json:"subIssues"`
		} `json:"node"`
	}
	err := g.execute(ctx, query, map[string]interface{}{"id": nodeID}, &data)
	if err != nil {
		return nil, featureErr(err, errors.FeatureSubIssues)
	}
	if data.Node == nil {
		return nil, errors.New(errors.CodeIssueNotFound, "node %s not found", nodeID)
	}

	convert := func(w wireIssue) IssueNode {
		n := IssueNode{NodeID: w.ID, Number: w.Number, Title: w.Title, Closed: w.Closed}
		if w.IssueType != nil {
			n.TypeName = w.IssueType.Name
		}
		return n
	}
	out := convert(data.Node.wireIssue)
	if data.Node.Parent != nil {
		parent := convert(*data.Node.Parent)
		out.Parent = &parent
	}
	for _, c := range data.Node.SubIssues.Nodes {
		out.Children = append(out.Children, convert(c))
	}
	return &out, nil
}

// ProjectInfo describes a project board's status field.
type ProjectInfo struct {
	ProjectID     string
	StatusFieldID string
	// Options maps lowercased option names to option IDs.
	Options map[string]string
}

// GetProjectInfo resolves a board and its single-select "Status" field.
// ownerKind is "orgs" or "users", mirroring the configured URL shape.
func (g *GraphQLClient) GetProjectInfo(ctx context.Context, ownerKind, owner string, number int) (*ProjectInfo, error) {
	fields := `projectV2(number: $number) {
	    id
	    fields(first: 50) {
	      nodes {
	        ... on ProjectV2SingleSelectField {
	          id name
	          options { id name }
	        }
	      }
	    }
	  }`
	var query string
	if ownerKind == "users" {
		query = `query($owner: String!, $number: Int!) { user(login: $owner) { ` + fields + ` } }`
	} else {
		query = `query($owner: String!, $number: Int!) { organization(login: $owner) { ` + fields + ` } }`
	}

	type wireProject struct {
		ID     string `json:"id"`
		Fields struct {
			Nodes []struct {
				ID      string `json:"id"`
				Name    string `json:"name"`
				Options []struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"options"`
			} `json:"nodes"`
		} `json:"fields"`
	}
	var data struct {
		Organization *struct {
			ProjectV2 *wireProject `json:"projectV2"`
		} `json:"organization"`
		User *struct {
			ProjectV2 *wireProject `json:"projectV2"`
		} `json:"user"`
	}
	err := g.execute(ctx, query, map[string]interface{}{"owner": owner, "number": number}, &data)
	if err != nil {
		return nil, featureErr(err, errors.FeatureProjectsV2)
	}

	var project *wireProject
	if data.Organization != nil {
		project = data.Organization.ProjectV2
	} else if data.User != nil {
		project = data.User.ProjectV2
	}
	if project == nil {
		return nil, errors.FeatureUnavailable(errors.FeatureProjectsV2)
	}

	info := &ProjectInfo{ProjectID: project.ID, Options: map[string]string{}}
	for _, f := range project.Fields.Nodes {
		if !strings.EqualFold(f.Name, "status") {
			continue
		}
		info.StatusFieldID = f.ID
		for _, o := range f.Options {
			info.Options[strings.ToLower(o.Name)] = o.ID
		}
		break
	}
	if info.StatusFieldID == "" {
		return nil, errors.FeatureUnavailable(errors.FeatureProjectsV2)
	}
	return info, nil
}

// AddIssueToProject places an issue on a board and returns the item ID.
// Adding an already-present issue returns the existing item.
func (g *GraphQLClient) AddIssueToProject(ctx context.Context, projectID, issueNodeID string) (string, error) {
	const mutation = `mutation($projectId: ID!, $contentId: ID!) {
	  addProjectV2ItemById(input: { projectId: $projectId, contentId: $contentId }) {
	    item { id }
	  }
	}`
	var data struct {
		AddProjectV2ItemByID struct {
			Item struct {
				ID string `json:"id"`
			} `json:"item"`
		} `json:"addProjectV2ItemById"`
	}
	err := g.execute(ctx, mutation, map[string]interface{}{
		"projectId": projectID, "contentId": issueNodeID,
	}, &data)
	if err != nil {
		return "", featureErr(err, errors.FeatureProjectsV2)
	}
	return data.AddProjectV2ItemByID.Item.ID, nil
}

// SetProjectField sets a single-select field value on a board item.
func (g *GraphQLClient) SetProjectField(ctx context.Context, projectID, itemID, fieldID, optionID string) error {
	const mutation = `mutation($projectId: ID!, $itemId: ID!, $fieldId: ID!, $optionId: String!) {
	  updateProjectV2ItemFieldValue(input: {
	    projectId: $projectId, itemId: $itemId, fieldId: $fieldId,
	    value: { singleSelectOptionId: $optionId }
	  }) {
	    projectV2Item { id }
	  }
	}`
	err := g.execute(ctx, mutation, map[string]interface{}{
		"projectId": projectID, "itemId": itemID, "fieldId": fieldID, "optionId": optionID,
	}, nil)
	return featureErr(err, errors.FeatureProjectsV2)
}

// GetProjectItemStatus reads the board's Status value for an issue, along
// with the item ID. Returns ok=false when the issue is not on the board.
func (g *GraphQLClient) GetProjectItemStatus(ctx context.Context, issueNodeID string) (itemID, status string, ok bool, err error) {
	const query = `query($id: ID!) {
	  node(id: $id) {
	    ... on Issue {
	      projectItems(first: 10) {
	        nodes {
	          id
	          fieldValueByName(name: "Status") {
	            ... on ProjectV2ItemFieldSingleSelectValue { name }
	          }
	        }
	      }
	    }
	  }
	}`
	var data struct {
		Node *struct {
			ProjectItems struct {
				Nodes []struct {
					ID               string `json:"id"`
					FieldValueByName *struct {
						Name string `json:"name"`
					} `json:"fieldValueByName"`
				} `json:"nodes"`
			} `json:"projectItems"`
		} `json:"node"`
	}
	if err := g.execute(ctx, query, map[string]interface{}{"id": issueNodeID}, &data); err != nil {
		return "", "", false, featureErr(err, errors.FeatureProjectsV2)
	}
	if data.Node == nil || len(data.Node.ProjectItems.Nodes) == 0 {
		return "", "", false, nil
	}
	item := data.Node.ProjectItems.Nodes[0]
	if item.FieldValueByName != nil {
		status = item.FieldValueByName.Name
	}
	return item.ID, status, true, nil
}

// CreateIssueType defines a custom issue type on the repository's owner.
// Used by init when the managed kinds are missing.
func (g *GraphQLClient) CreateIssueType(ctx context.Context, ownerID, name, description string) error {
	const mutation = `mutation($ownerId: ID!, $name: String!, $description: String) {
	  createIssueType(input: { ownerId: $ownerId, name: $name, description: $description }) {
	    issueType { id }
	  }
	}`
	err := g.execute(ctx, mutation, map[string]interface{}{
		"ownerId": ownerID, "name": name, "description": description,
	}, nil)
	return featureErr(err, errors.FeatureIssueTypes)
}

// GetOwnerID resolves the node ID of a repository owner (org or user).
func (g *GraphQLClient) GetOwnerID(ctx context.Context, owner string) (string, error) {
	const query = `query($login: String!) {
	  repositoryOwner(login: $login) { id }
	}`
	var data struct {
		RepositoryOwner *struct {
			ID string `json:"id"`
		} `json:"repositoryOwner"`
	}
	if err := g.execute(ctx, query, map[string]interface{}{"login": owner}, &data); err != nil {
		return "", fmt.Errorf("resolving owner %s: %w", owner, err)
	}
	if data.RepositoryOwner == nil {
		return "", errors.New(errors.CodeIssueNotFound, "owner %s not found", owner)
	}
	return data.RepositoryOwner.ID, nil
}

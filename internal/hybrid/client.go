// Package hybrid unifies the REST and GraphQL transports behind one client.
//
// The hybrid client owns feature detection (probed once per process and
// memoised), per-operation routing between the two transports, fallback
// selection when a preview feature is absent, node-ID translation, and the
// rollback that keeps the hierarchy invariant when a composite creation
// fails partway.
package hybrid

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/justynbrt/ghoo/internal/body"
	"github.com/justynbrt/ghoo/internal/config"
	"github.com/justynbrt/ghoo/internal/errors"
	"github.com/justynbrt/ghoo/internal/github"
	"github.com/justynbrt/ghoo/internal/types"
)

// Feature is a probe-able remote capability.
type Feature string

const (
	FeatureSubIssues  Feature = errors.FeatureSubIssues
	FeatureIssueTypes Feature = errors.FeatureIssueTypes
	FeatureProjectsV2 Feature = errors.FeatureProjectsV2
)

// nodeCacheSize bounds the per-command node-ID LRU.
const nodeCacheSize = 128

// Client is the hybrid façade. It exclusively owns both transports for the
// lifetime of one command invocation.
type Client struct {
	rest  *github.Client
	graph *github.GraphQLClient
	cfg   *config.Config

	owner string
	repo  string

	features map[Feature]bool
	nodes    *nodeCache

	projectInfo *github.ProjectInfo // lazily resolved board metadata

	// warnf reports degradations to the user without failing the command.
	warnf func(format string, args ...interface{})
}

// New builds a hybrid client over the two transports.
func New(rest *github.Client, graph *github.GraphQLClient, cfg *config.Config, owner, repo string) *Client {
	return &Client{
		rest:     rest,
		graph:    graph,
		cfg:      cfg,
		owner:    owner,
		repo:     repo,
		features: make(map[Feature]bool),
		nodes:    newNodeCache(nodeCacheSize),
		warnf: func(format string, args ...interface{}) {
			fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
		},
	}
}

// WithWarnFunc redirects degradation warnings (the command layer and tests).
func (c *Client) WithWarnFunc(fn func(string, ...interface{})) *Client {
	c.warnf = fn
	return c
}

// REST exposes the underlying REST transport for plain CRUD.
func (c *Client) REST() *github.Client { return c.rest }

// Graph exposes the underlying GraphQL transport for feature-specific
// operations the routed surface does not cover (init's asset creation).
func (c *Client) Graph() *github.GraphQLClient { return c.graph }

// Owner and Repo name the target repository.
func (c *Client) Owner() string { return c.owner }
func (c *Client) Repo() string  { return c.repo }

// HasFeature probes a capability, at most once per process. A probe that
// errors in any unexpected way reads as unavailable: degraded fidelity is
// recoverable, a crashed command is not.
func (c *Client) HasFeature(ctx context.Context, f Feature) bool {
	if available, probed := c.features[f]; probed {
		return available
	}
	available := c.probe(ctx, f)
	c.features[f] = available
	return available
}

func (c *Client) probe(ctx context.Context, f Feature) bool {
	switch f {
	case FeatureIssueTypes:
		_, err := c.graph.ListIssueTypes(ctx, c.owner, c.repo)
		return err == nil
	case FeatureSubIssues:
		return c.graph.ProbeSubIssues(ctx, c.owner, c.repo) == nil
	case FeatureProjectsV2:
		if c.cfg.ProjectNumber == 0 {
			return false
		}
		info, err := c.projectMetadata(ctx)
		return err == nil && info != nil
	}
	return false
}

// projectMetadata lazily resolves the configured board and its status field.
func (c *Client) projectMetadata(ctx context.Context) (*github.ProjectInfo, error) {
	if c.projectInfo != nil {
		return c.projectInfo, nil
	}
	ownerKind := "orgs"
	if strings.Contains(c.cfg.ProjectURL, "/users/") {
		ownerKind = "users"
	}
	info, err := c.graph.GetProjectInfo(ctx, ownerKind, c.cfg.ProjectOwner, c.cfg.ProjectNumber)
	if err != nil {
		return nil, err
	}
	c.projectInfo = info
	return info, nil
}

// ResolveNode translates (owner, repo, number) to the opaque node ID, with
// an LRU memo for the duration of the command.
func (c *Client) ResolveNode(ctx context.Context, number int) (string, error) {
	key := nodeKey{owner: c.owner, repo: c.repo, number: number}
	if id, ok := c.nodes.get(key); ok {
		return id, nil
	}
	id, err := c.graph.ResolveNodeID(ctx, c.owner, c.repo, number)
	if err != nil {
		return "", err
	}
	c.nodes.put(key, id)
	return id, nil
}

// Actor resolves the login of the authenticated principal, preferring the
// graph viewer query and falling back to REST.
func (c *Client) Actor(ctx context.Context) (string, error) {
	if login, err := c.graph.GetViewerLogin(ctx); err == nil && login != "" {
		return login, nil
	}
	user, err := c.rest.GetAuthenticatedUser(ctx)
	if err != nil {
		return "", err
	}
	return user.Login, nil
}

// GetIssue fetches an issue and derives its kind and workflow state.
func (c *Client) GetIssue(ctx context.Context, number int) (*types.Issue, error) {
	raw, err := c.rest.GetIssue(ctx, number)
	if err != nil {
		return nil, err
	}
	return c.convert(ctx, raw), nil
}

func (c *Client) convert(ctx context.Context, raw *github.Issue) *types.Issue {
	issue := &types.Issue{
		Number:    raw.Number,
		NodeID:    raw.NodeID,
		Title:     raw.Title,
		Body:      raw.Body,
		Labels:    github.LabelNames(raw.Labels),
		Assignees: github.AssigneeLogins(raw.Assignees),
		Closed:    raw.State == "closed",
		URL:       raw.HTMLURL,
	}
	if raw.Milestone != nil {
		issue.Milestone = raw.Milestone.Title
	}
	if raw.NodeID != "" {
		c.nodes.put(nodeKey{owner: c.owner, repo: c.repo, number: raw.Number}, raw.NodeID)
	}

	// The native type wins; type labels are the degraded representation.
	if raw.Type != nil && raw.Type.Name != "" {
		if t, err := types.ParseIssueType(raw.Type.Name); err == nil {
			issue.Type = t
		}
	}
	if issue.Type == "" {
		issue.Type = types.TypeFromLabels(issue.Labels)
	}

	state, err := c.ReadState(ctx, issue)
	if err != nil {
		state = types.StateBacklog
	}
	issue.State = state
	return issue
}

// ResolveKind determines the kind of an issue for hierarchy validation:
// typed query when issue types are available, label inference otherwise.
func (c *Client) ResolveKind(ctx context.Context, number int) (types.IssueType, error) {
	if c.HasFeature(ctx, FeatureIssueTypes) {
		if nodeID, err := c.ResolveNode(ctx, number); err == nil {
			if node, err := c.graph.GetIssueWithChildren(ctx, nodeID); err == nil && node.TypeName != "" {
				if t, err := types.ParseIssueType(node.TypeName); err == nil {
					return t, nil
				}
			}
		}
	}
	raw, err := c.rest.GetIssue(ctx, number)
	if err != nil {
		return types.TypeIssue, err
	}
	return types.TypeFromLabels(github.LabelNames(raw.Labels)), nil
}

// CreateRequest describes a typed, optionally linked creation.
type CreateRequest struct {
	Kind      types.IssueType
	Title     string
	Body      string
	Labels    []string // extra labels; status:backlog is added by the caller
	Assignees []string
	Milestone int // milestone number, 0 for none

	// Parent is the required parent for tasks and sub-tasks, 0 for epics.
	Parent int
	// ParentRequired makes a failed edge a rollback, not a degradation.
	ParentRequired bool
}

// CreateResult reports what was created and which fallbacks were taken.
type CreateResult struct {
	Issue *types.Issue `json:"issue"`
	// TypeFallback is set when the native typed create was unavailable and
	// a type label was applied instead.
	TypeFallback bool `json:"type_fallback,omitempty"`
	// Fallback names the hierarchy fallback taken: "" (native edge) or
	// "body-reference".
	Fallback string `json:"fallback,omitempty"`
}

// stepAddSubIssueEdge names the composite step surfaced by rollback.
const stepAddSubIssueEdge = "add_sub_issue_edge"

// Create performs the composite typed-and-linked creation with the
// documented fallbacks and the rollback that prevents orphaned children.
func (c *Client) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	result := &CreateResult{}

	created, err := c.createTyped(ctx, req, result)
	if err != nil {
		return nil, err
	}

	if req.Parent > 0 {
		if err := c.linkParent(ctx, created, req, result); err != nil {
			return nil, err
		}
	}

	issue, err := c.GetIssue(ctx, created.Number)
	if err != nil {
		// The issue exists; degrade to the minimal view rather than failing
		// a creation that already happened.
		issue = &types.Issue{Number: created.Number, Title: req.Title, Type: req.Kind, State: types.StateBacklog}
	}
	result.Issue = issue
	return result, nil
}

// createTyped runs the preferred graph create, falling back to REST + type
// label when native types are unavailable.
func (c *Client) createTyped(ctx context.Context, req CreateRequest, result *CreateResult) (*github.CreatedIssue, error) {
	labels := append([]string{}, req.Labels...)

	if c.HasFeature(ctx, FeatureIssueTypes) {
		created, err := c.createViaGraph(ctx, req)
		if err == nil {
			// Labels, assignees, and milestone are REST-side attributes;
			// apply them after the typed create.
			c.applyCreateExtras(ctx, created.Number, labels, req)
			return created, nil
		}
		if !errors.IsCode(err, errors.CodeFeatureUnavailable) {
			return nil, err
		}
		c.features[FeatureIssueTypes] = false
		c.warnf("native issue types unavailable; falling back to a %s label", req.Kind.Label())
	}

	result.TypeFallback = true
	labels = append(labels, req.Kind.Label())
	issue, err := c.rest.CreateIssue(ctx, github.CreateIssueRequest{
		Title:     req.Title,
		Body:      req.Body,
		Labels:    labels,
		Assignees: req.Assignees,
		Milestone: req.Milestone,
	})
	if err != nil {
		return nil, err
	}
	return &github.CreatedIssue{NodeID: issue.NodeID, Number: issue.Number, URL: issue.HTMLURL}, nil
}

func (c *Client) createViaGraph(ctx context.Context, req CreateRequest) (*github.CreatedIssue, error) {
	typeIDs, err := c.graph.ListIssueTypes(ctx, c.owner, c.repo)
	if err != nil {
		return nil, err
	}
	typeID, ok := typeIDs[strings.ToLower(req.Kind.DisplayName())]
	if !ok {
		return nil, errors.FeatureUnavailable(errors.FeatureIssueTypes)
	}
	repoID, err := c.graph.GetRepositoryID(ctx, c.owner, c.repo)
	if err != nil {
		return nil, err
	}
	created, err := c.graph.CreateIssueWithType(ctx, repoID, req.Title, req.Body, typeID)
	if err != nil {
		return nil, err
	}
	c.nodes.put(nodeKey{owner: c.owner, repo: c.repo, number: created.Number}, created.NodeID)
	return created, nil
}

// applyCreateExtras attaches labels, assignees, and milestone to a
// graph-created issue. Failures warn instead of failing the creation.
func (c *Client) applyCreateExtras(ctx context.Context, number int, labels []string, req CreateRequest) {
	if len(labels) > 0 {
		if err := c.rest.AddLabels(ctx, number, labels); err != nil {
			c.warnf("issue #%d created, but adding labels failed: %v", number, err)
		}
	}
	if len(req.Assignees) > 0 {
		if err := c.rest.AddAssignees(ctx, number, req.Assignees); err != nil {
			c.warnf("issue #%d created, but assigning failed: %v", number, err)
		}
	}
	if req.Milestone > 0 {
		if _, err := c.rest.SetMilestone(ctx, number, req.Milestone); err != nil {
			c.warnf("issue #%d created, but setting milestone failed: %v", number, err)
		}
	}
}

// linkParent establishes the parent relationship for a freshly created
// child: native edge preferred, body back-reference on feature absence,
// rollback on hard failure when the relationship is required.
func (c *Client) linkParent(ctx context.Context, created *github.CreatedIssue, req CreateRequest, result *CreateResult) error {
	if c.HasFeature(ctx, FeatureSubIssues) {
		err := c.addEdge(ctx, req.Parent, created)
		if err == nil {
			// Keep the textual reference alongside the native edge so the
			// rendered body still names its parent.
			c.ensureParentReference(ctx, created.Number, req.Parent)
			return nil
		}
		if !errors.IsCode(err, errors.CodeFeatureUnavailable) {
			if req.ParentRequired {
				c.rollbackOrphan(ctx, created.Number)
				return errors.RelationshipRequired(stepAddSubIssueEdge)
			}
			c.warnf("parent edge to #%d failed: %v", req.Parent, err)
		} else {
			c.features[FeatureSubIssues] = false
		}
	}

	// Feature absent: fall back to the prelude back-reference.
	if err := c.setParentReference(ctx, created.Number, req.Parent); err != nil {
		if req.ParentRequired {
			c.rollbackOrphan(ctx, created.Number)
			return errors.RelationshipRequired("set_parent_reference")
		}
		return err
	}
	result.Fallback = "body-reference"
	return nil
}

func (c *Client) addEdge(ctx context.Context, parent int, created *github.CreatedIssue) error {
	parentNode, err := c.ResolveNode(ctx, parent)
	if err != nil {
		return err
	}
	childNode := created.NodeID
	if childNode == "" {
		childNode, err = c.ResolveNode(ctx, created.Number)
		if err != nil {
			return err
		}
	}
	return c.graph.AddSubIssueEdge(ctx, parentNode, childNode)
}

// ensureParentReference rewrites the child body only when the prelude does
// not already carry the reference.
func (c *Client) ensureParentReference(ctx context.Context, child, parent int) {
	raw, err := c.rest.GetIssue(ctx, child)
	if err != nil {
		return
	}
	parsed := body.Parse(raw.Body)
	if parsed.Refs.Parent == parent {
		return
	}
	parsed.SetParentReference(parent)
	rendered, err := parsed.Render()
	if err != nil {
		return
	}
	if _, err := c.rest.UpdateIssueBody(ctx, child, rendered); err != nil {
		c.warnf("issue #%d created, but writing the parent reference failed: %v", child, err)
	}
}

// setParentReference is the fallback link: it must succeed for the
// hierarchy invariant to hold.
func (c *Client) setParentReference(ctx context.Context, child, parent int) error {
	raw, err := c.rest.GetIssue(ctx, child)
	if err != nil {
		return err
	}
	parsed := body.Parse(raw.Body)
	if parsed.Refs.Parent != parent {
		parsed.SetParentReference(parent)
	}
	rendered, err := parsed.Render()
	if err != nil {
		return err
	}
	_, err = c.rest.UpdateIssueBody(ctx, child, rendered)
	return err
}

// rollbackOrphan closes a child whose required relationship could not be
// established. Closing is idempotent; an already-closed issue is a no-op,
// and a rollback failure is reported but cannot resurrect the orphan.
func (c *Client) rollbackOrphan(ctx context.Context, number int) {
	if _, err := c.rest.CloseIssue(ctx, number); err != nil {
		c.warnf("rollback of orphaned issue #%d failed: %v", number, err)
	}
}

// Hierarchy is the parent/children view of one issue.
type Hierarchy struct {
	Parent   *types.ChildRef  `json:"parent,omitempty"`
	Children []types.ChildRef `json:"children,omitempty"`
	// Source is "native" or "body-reference".
	Source string `json:"source"`
}

// GetHierarchy resolves an issue's parent and children, preferring native
// edges and degrading to body references.
func (c *Client) GetHierarchy(ctx context.Context, issue *types.Issue) (*Hierarchy, error) {
	if c.HasFeature(ctx, FeatureSubIssues) {
		nodeID := issue.NodeID
		var err error
		if nodeID == "" {
			nodeID, err = c.ResolveNode(ctx, issue.Number)
		}
		if err == nil {
			if node, err := c.graph.GetIssueWithChildren(ctx, nodeID); err == nil {
				return nativeHierarchy(node), nil
			}
		}
	}
	return c.bodyHierarchy(ctx, issue)
}

func nativeHierarchy(node *github.IssueNode) *Hierarchy {
	h := &Hierarchy{Source: "native"}
	if node.Parent != nil {
		h.Parent = &types.ChildRef{
			Number: node.Parent.Number,
			Title:  node.Parent.Title,
			Closed: node.Parent.Closed,
			Type:   kindFromTypeName(node.Parent.TypeName),
		}
	}
	for _, child := range node.Children {
		h.Children = append(h.Children, types.ChildRef{
			Number: child.Number,
			Title:  child.Title,
			Closed: child.Closed,
			Type:   kindFromTypeName(child.TypeName),
		})
	}
	return h
}

func kindFromTypeName(name string) types.IssueType {
	if name == "" {
		return types.TypeIssue
	}
	t, err := types.ParseIssueType(name)
	if err != nil {
		return types.TypeIssue
	}
	return t
}

// bodyHierarchy reconstructs the hierarchy from textual references: the
// prelude parent line upward, tasklist references downward.
func (c *Client) bodyHierarchy(ctx context.Context, issue *types.Issue) (*Hierarchy, error) {
	h := &Hierarchy{Source: "body-reference"}
	parsed := body.Parse(issue.Body)

	if parsed.Refs.HasParent() {
		if parent, err := c.rest.GetIssue(ctx, parsed.Refs.Parent); err == nil {
			h.Parent = &types.ChildRef{
				Number: parent.Number,
				Title:  parent.Title,
				Closed: parent.State == "closed",
				Type:   types.TypeFromLabels(github.LabelNames(parent.Labels)),
			}
		}
	}

	seen := map[int]bool{}
	for _, n := range parsed.Refs.ReferencedTasks {
		if seen[n] {
			continue
		}
		seen[n] = true
		child, err := c.rest.GetIssue(ctx, n)
		if err != nil {
			continue
		}
		h.Children = append(h.Children, types.ChildRef{
			Number: child.Number,
			Title:  child.Title,
			Closed: child.State == "closed",
			Type:   types.TypeFromLabels(github.LabelNames(child.Labels)),
		})
	}
	return h, nil
}

// ReadState reads the workflow state from the configured backend. A closed
// issue is always in state closed, whatever the labels say.
func (c *Client) ReadState(ctx context.Context, issue *types.Issue) (types.WorkflowState, error) {
	if issue.Closed {
		return types.StateClosed, nil
	}

	if c.cfg.StatusMethod == config.StatusField && c.HasFeature(ctx, FeatureProjectsV2) {
		nodeID := issue.NodeID
		var err error
		if nodeID == "" {
			nodeID, err = c.ResolveNode(ctx, issue.Number)
			if err != nil {
				return c.stateFromLabels(issue), nil
			}
		}
		_, status, ok, err := c.graph.GetProjectItemStatus(ctx, nodeID)
		if err == nil && ok && status != "" {
			if st, perr := types.ParseWorkflowState(status); perr == nil {
				return st, nil
			}
		}
		if err != nil {
			return "", err
		}
		return types.StateBacklog, nil
	}

	return c.stateFromLabels(issue), nil
}

// stateFromLabels canonicalizes the label-carried state. Multiple status
// labels are a remote-side inconsistency: the lexicographically-first one
// is authoritative and the ambiguity is reported.
func (c *Client) stateFromLabels(issue *types.Issue) types.WorkflowState {
	var found []types.WorkflowState
	for _, l := range issue.Labels {
		if st, ok := types.IsStatusLabel(l); ok {
			found = append(found, st)
		}
	}
	switch len(found) {
	case 0:
		return types.StateBacklog
	case 1:
		return found[0]
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Label() < found[j].Label() })
	c.warnf("issue #%d carries %d status labels; treating %s as authoritative",
		issue.Number, len(found), found[0].Label())
	return found[0]
}

// SetState projects a new workflow state onto the configured backend.
// When the config says status_field but the board feature is unavailable,
// the client degrades to labels with a warning; any other board error is
// returned.
func (c *Client) SetState(ctx context.Context, issue *types.Issue, to types.WorkflowState) error {
	if c.cfg.StatusMethod == config.StatusField {
		if c.HasFeature(ctx, FeatureProjectsV2) {
			err := c.setBoardState(ctx, issue, to)
			if err == nil {
				return nil
			}
			if !errors.IsCode(err, errors.CodeFeatureUnavailable) {
				return err
			}
			c.features[FeatureProjectsV2] = false
		}
		c.warnf("project status field unavailable; falling back to status labels")
	}
	return c.setLabelState(ctx, issue, to)
}

func (c *Client) setBoardState(ctx context.Context, issue *types.Issue, to types.WorkflowState) error {
	info, err := c.projectMetadata(ctx)
	if err != nil {
		return err
	}
	optionID, ok := info.Options[string(to)]
	if !ok {
		return errors.New(errors.CodeFeatureUnavailable,
			"feature %q is not available on this repository", errors.FeatureProjectsV2).
			WithHint(fmt.Sprintf("the board's Status field has no %q option; run ghoo init", to))
	}

	nodeID := issue.NodeID
	if nodeID == "" {
		nodeID, err = c.ResolveNode(ctx, issue.Number)
		if err != nil {
			return err
		}
	}
	itemID, _, onBoard, err := c.graph.GetProjectItemStatus(ctx, nodeID)
	if err != nil {
		return err
	}
	if !onBoard {
		itemID, err = c.graph.AddIssueToProject(ctx, info.ProjectID, nodeID)
		if err != nil {
			return err
		}
	}
	return c.graph.SetProjectField(ctx, info.ProjectID, itemID, info.StatusFieldID, optionID)
}

// setLabelState swaps the status label set: one atomic replace of the full
// label set, or remove-then-add when that replace call fails.
func (c *Client) setLabelState(ctx context.Context, issue *types.Issue, to types.WorkflowState) error {
	var keep []string
	var stale []string
	for _, l := range issue.Labels {
		if _, ok := types.IsStatusLabel(l); ok {
			stale = append(stale, l)
			continue
		}
		keep = append(keep, l)
	}

	next := append(keep, to.Label())
	if err := c.rest.SetLabels(ctx, issue.Number, next); err == nil {
		return nil
	}

	// Degraded path: swap labels one by one.
	for _, l := range stale {
		if err := c.rest.RemoveLabel(ctx, issue.Number, l); err != nil {
			return err
		}
	}
	return c.rest.AddLabels(ctx, issue.Number, []string{to.Label()})
}

// UpdateBody writes a new body via REST.
func (c *Client) UpdateBody(ctx context.Context, number int, newBody string) error {
	_, err := c.rest.UpdateIssueBody(ctx, number, newBody)
	return err
}

// CloseIssue flips the open/closed flag via REST.
func (c *Client) CloseIssue(ctx context.Context, number int) error {
	_, err := c.rest.CloseIssue(ctx, number)
	return err
}

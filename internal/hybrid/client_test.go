package hybrid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justynbrt/ghoo/internal/config"
	"github.com/justynbrt/ghoo/internal/errors"
	"github.com/justynbrt/ghoo/internal/github"
	"github.com/justynbrt/ghoo/internal/types"
)

// fakeRemote is an httptest-backed stand-in for both transports: REST
// requests are dispatched on method+path, graph requests on a query
// substring.
type fakeRemote struct {
	t     *testing.T
	rest  map[string]http.HandlerFunc // "METHOD /path" → handler
	graph map[string]http.HandlerFunc // query substring → handler

	graphCalls map[string]*atomic.Int32
}

func newFakeRemote(t *testing.T) *fakeRemote {
	return &fakeRemote{
		t:          t,
		rest:       map[string]http.HandlerFunc{},
		graph:      map[string]http.HandlerFunc{},
		graphCalls: map[string]*atomic.Int32{},
	}
}

func (f *fakeRemote) onRest(key string, h http.HandlerFunc) { f.rest[key] = h }

func (f *fakeRemote) onGraph(substr string, h http.HandlerFunc) {
	f.graph[substr] = h
	f.graphCalls[substr] = &atomic.Int32{}
}

func (f *fakeRemote) client(cfg *config.Config) *Client {
	restSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		if h, ok := f.rest[key]; ok {
			h(w, r)
			return
		}
		f.t.Logf("unexpected REST call: %s", key)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message": "Not Found"}`))
	}))
	f.t.Cleanup(restSrv.Close)

	graphSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for substr, h := range f.graph {
			if strings.Contains(req.Query, substr) {
				f.graphCalls[substr].Add(1)
				h(w, r)
				return
			}
		}
		f.t.Logf("unexpected graph query: %s", req.Query)
		_, _ = w.Write([]byte(`{"errors": [{"message": "unhandled query in test"}]}`))
	}))
	f.t.Cleanup(graphSrv.Close)

	rest := github.NewClient("tok", "acme", "svc").WithBaseURL(restSrv.URL)
	graph := github.NewGraphQLClient("tok").WithEndpoint(graphSrv.URL)
	return New(rest, graph, cfg, "acme", "svc").WithWarnFunc(func(string, ...interface{}) {})
}

func labelsConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse("ghoo.yaml", []byte("project_url: https://github.com/acme/svc\n"))
	require.NoError(t, err)
	return cfg
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	_ = json.NewEncoder(w).Encode(v)
}

func graphOK(data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": ` + data + `}`))
	}
}

func graphFeatureMissing(field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fmt.Sprintf(
			`{"errors": [{"message": "Field '%s' doesn't exist on type 'Issue'"}]}`, field)))
	}
}

func TestFeatureProbedAtMostOnce(t *testing.T) {
	f := newFakeRemote(t)
	f.onGraph("issueTypes", graphOK(`{"repository": {"issueTypes": {"nodes": [{"id": "T1", "name": "Epic"}]}}}`))
	c := f.client(labelsConfig(t))

	ctx := context.Background()
	assert.True(t, c.HasFeature(ctx, FeatureIssueTypes))
	assert.True(t, c.HasFeature(ctx, FeatureIssueTypes))
	assert.True(t, c.HasFeature(ctx, FeatureIssueTypes))
	assert.Equal(t, int32(1), f.graphCalls["issueTypes"].Load(), "probe must be memoised")
}

func TestFailedProbeIsPessimistic(t *testing.T) {
	f := newFakeRemote(t)
	f.onGraph("issueTypes", graphFeatureMissing("issueTypes"))
	c := f.client(labelsConfig(t))

	assert.False(t, c.HasFeature(context.Background(), FeatureIssueTypes))
	assert.Equal(t, int32(1), f.graphCalls["issueTypes"].Load())
}

func TestResolveNodeCached(t *testing.T) {
	f := newFakeRemote(t)
	f.onGraph("issue(number:", graphOK(`{"repository": {"issue": {"id": "I_42"}}}`))
	c := f.client(labelsConfig(t))

	ctx := context.Background()
	id1, err := c.ResolveNode(ctx, 42)
	require.NoError(t, err)
	id2, err := c.ResolveNode(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "I_42", id1)
	assert.Equal(t, id1, id2)
	assert.Equal(t, int32(1), f.graphCalls["issue(number:"].Load())
}

// issueJSON builds a minimal REST issue payload.
func issueJSON(number int, title, bodyText, state string, labels ...string) github.Issue {
	var ls []github.Label
	for _, l := range labels {
		ls = append(ls, github.Label{Name: l})
	}
	return github.Issue{
		Number: number,
		NodeID: fmt.Sprintf("I_%d", number),
		Title:  title,
		Body:   bodyText,
		State:  state,
		Labels: ls,
	}
}

func TestGetIssueDerivesTypeAndState(t *testing.T) {
	f := newFakeRemote(t)
	f.onRest("GET /repos/acme/svc/issues/5", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, issueJSON(5, "Endpoint", "", "open", "type:task", "status:planning"))
	})
	c := f.client(labelsConfig(t))

	issue, err := c.GetIssue(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, types.TypeTask, issue.Type)
	assert.Equal(t, types.StatePlanning, issue.State)
}

func TestStateFromLabelsCanonicalizesAmbiguity(t *testing.T) {
	f := newFakeRemote(t)
	var warned atomic.Int32
	c := f.client(labelsConfig(t)).WithWarnFunc(func(string, ...interface{}) { warned.Add(1) })

	issue := &types.Issue{
		Number: 9,
		Labels: []string{"status:planning", "status:backlog"},
	}
	st, err := c.ReadState(context.Background(), issue)
	require.NoError(t, err)
	assert.Equal(t, types.StateBacklog, st, "lexicographically-first status label wins")
	assert.Equal(t, int32(1), warned.Load())
}

func TestClosedIssueIsClosedState(t *testing.T) {
	f := newFakeRemote(t)
	c := f.client(labelsConfig(t))
	st, err := c.ReadState(context.Background(), &types.Issue{Number: 2, Closed: true, Labels: []string{"status:planning"}})
	require.NoError(t, err)
	assert.Equal(t, types.StateClosed, st)
}

// S2: edge mutation unavailable → child kept, body-reference fallback.
func TestCreateTaskEdgeFeatureFallback(t *testing.T) {
	f := newFakeRemote(t)

	// Typed create is unavailable: fall back to REST create + type label.
	f.onGraph("issueTypes", graphFeatureMissing("issueTypes"))
	// Sub-issues probe succeeds, but the mutation itself is denied.
	f.onGraph("totalCount", graphOK(`{"repository": {"issues": {"nodes": []}}}`))
	f.onGraph("addSubIssue", graphFeatureMissing("subIssues"))
	f.onGraph("issue(number:", graphOK(`{"repository": {"issue": {"id": "I_10"}}}`))

	childBody := "**Parent:** #10\n\n## Summary\n"
	var updatedBody atomic.Value
	f.onRest("POST /repos/acme/svc/issues", func(w http.ResponseWriter, r *http.Request) {
		var req github.CreateIssueRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Contains(t, req.Labels, "type:task")
		writeJSON(w, issueJSON(11, req.Title, req.Body, "open", req.Labels...))
	})
	f.onRest("GET /repos/acme/svc/issues/11", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, issueJSON(11, "Endpoint", childBody, "open", "type:task", "status:backlog"))
	})
	f.onRest("PATCH /repos/acme/svc/issues/11", func(w http.ResponseWriter, r *http.Request) {
		var patch map[string]string
		_ = json.NewDecoder(r.Body).Decode(&patch)
		updatedBody.Store(patch["body"])
		writeJSON(w, issueJSON(11, "Endpoint", patch["body"], "open"))
	})

	c := f.client(labelsConfig(t))
	result, err := c.Create(context.Background(), CreateRequest{
		Kind:           types.TypeTask,
		Title:          "Endpoint",
		Body:           childBody,
		Labels:         []string{"status:backlog"},
		Parent:         10,
		ParentRequired: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "body-reference", result.Fallback)
	assert.True(t, result.TypeFallback)
	assert.Equal(t, 11, result.Issue.Number)
}

// S3: hard edge failure → orphan closed, RelationshipRequired surfaced.
func TestCreateTaskHardEdgeFailureRollsBack(t *testing.T) {
	f := newFakeRemote(t)

	f.onGraph("issueTypes", graphFeatureMissing("issueTypes"))
	f.onGraph("totalCount", graphOK(`{"repository": {"issues": {"nodes": []}}}`))
	f.onGraph("addSubIssue", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message": "boom"}`))
	})
	f.onGraph("issue(number:", graphOK(`{"repository": {"issue": {"id": "I_10"}}}`))

	var closed atomic.Bool
	f.onRest("POST /repos/acme/svc/issues", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, issueJSON(11, "Endpoint", "", "open"))
	})
	f.onRest("PATCH /repos/acme/svc/issues/11", func(w http.ResponseWriter, r *http.Request) {
		var patch map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&patch)
		if patch["state"] == "closed" {
			closed.Store(true)
		}
		writeJSON(w, issueJSON(11, "Endpoint", "", "closed"))
	})

	c := f.client(labelsConfig(t))
	_, err := c.Create(context.Background(), CreateRequest{
		Kind:           types.TypeTask,
		Title:          "Endpoint",
		Parent:         10,
		ParentRequired: true,
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeRelationshipRequired, errors.CodeOf(err))
	assert.Contains(t, err.Error(), stepAddSubIssueEdge)
	assert.True(t, closed.Load(), "orphan must be rolled back")
}

func TestCreateEpicNativeTypedPath(t *testing.T) {
	f := newFakeRemote(t)

	f.onGraph("issueTypes", graphOK(`{"repository": {"issueTypes": {"nodes": [{"id": "T_epic", "name": "Epic"}]}}}`))
	f.onGraph("repository(owner: $owner, name: $repo) { id }", graphOK(`{"repository": {"id": "R_1"}}`))
	f.onGraph("createIssue", graphOK(`{"createIssue": {"issue": {"id": "I_20", "number": 20, "url": "u"}}}`))

	var gotLabels atomic.Value
	f.onRest("POST /repos/acme/svc/issues/20/labels", func(w http.ResponseWriter, r *http.Request) {
		var req map[string][]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotLabels.Store(req["labels"])
		_, _ = w.Write([]byte(`[]`))
	})
	f.onRest("GET /repos/acme/svc/issues/20", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, issueJSON(20, "Auth", "", "open", "status:backlog"))
	})

	c := f.client(labelsConfig(t))
	result, err := c.Create(context.Background(), CreateRequest{
		Kind:   types.TypeEpic,
		Title:  "Auth",
		Labels: []string{"status:backlog"},
	})
	require.NoError(t, err)
	assert.False(t, result.TypeFallback)
	assert.Empty(t, result.Fallback)
	assert.Equal(t, []string{"status:backlog"}, gotLabels.Load())
}

func TestSetLabelStateAtomicSwap(t *testing.T) {
	f := newFakeRemote(t)
	var put atomic.Value
	f.onRest("PUT /repos/acme/svc/issues/5/labels", func(w http.ResponseWriter, r *http.Request) {
		var req map[string][]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		put.Store(req["labels"])
		_, _ = w.Write([]byte(`[]`))
	})

	c := f.client(labelsConfig(t))
	issue := &types.Issue{Number: 5, Labels: []string{"type:epic", "status:backlog"}}
	require.NoError(t, c.SetState(context.Background(), issue, types.StatePlanning))

	labels, _ := put.Load().([]string)
	assert.ElementsMatch(t, []string{"type:epic", "status:planning"}, labels)
}

func TestHierarchyBodyFallback(t *testing.T) {
	f := newFakeRemote(t)
	f.onGraph("totalCount", graphFeatureMissing("subIssues"))
	f.onRest("GET /repos/acme/svc/issues/12", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, issueJSON(12, "Child A", "", "closed", "type:task"))
	})
	f.onRest("GET /repos/acme/svc/issues/13", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, issueJSON(13, "Child B", "", "open", "type:task"))
	})

	c := f.client(labelsConfig(t))
	epic := &types.Issue{
		Number: 10,
		Type:   types.TypeEpic,
		Body:   "- [x] #12\n- [ ] #13\n\n## Summary\n",
	}
	h, err := c.GetHierarchy(context.Background(), epic)
	require.NoError(t, err)
	assert.Equal(t, "body-reference", h.Source)
	require.Len(t, h.Children, 2)
	assert.True(t, h.Children[0].Closed)
	assert.Equal(t, types.TypeTask, h.Children[1].Type)
}

func TestHierarchyNative(t *testing.T) {
	f := newFakeRemote(t)
	f.onGraph("totalCount", graphOK(`{"repository": {"issues": {"nodes": []}}}`))
	f.onGraph("subIssues(first: 100)", graphOK(`{"node": {
		"id": "I_10", "number": 10, "title": "Auth", "closed": false,
		"issueType": {"name": "Epic"},
		"parent": null,
		"subIssues": {"nodes": [
			{"id": "I_11", "number": 11, "title": "Endpoint", "closed": false, "issueType": {"name": "Task"}}
		]}
	}}`))

	c := f.client(labelsConfig(t))
	h, err := c.GetHierarchy(context.Background(), &types.Issue{Number: 10, NodeID: "I_10"})
	require.NoError(t, err)
	assert.Equal(t, "native", h.Source)
	require.Len(t, h.Children, 1)
	assert.Equal(t, 11, h.Children[0].Number)
}

// Package types defines the core data model for ghoo: issue kinds, workflow
// states, and the value objects produced by the body parser.
//
// Everything here is plain data. Behavior (parsing, remote calls, workflow
// rules) lives in the packages that consume these types.
package types

import (
	"fmt"
	"strings"
	"time"
)

// IssueType identifies an issue's place in the Epic → Task → Sub-task
// hierarchy. TypeIssue is the fallback for issues created outside ghoo.
type IssueType string

const (
	TypeEpic    IssueType = "epic"
	TypeTask    IssueType = "task"
	TypeSubTask IssueType = "sub-task"
	TypeIssue   IssueType = "issue"
)

// AllIssueTypes lists the three managed kinds, in hierarchy order.
var AllIssueTypes = []IssueType{TypeEpic, TypeTask, TypeSubTask}

// ParseIssueType normalizes a user-supplied kind string. The "subtask"
// spelling is accepted and canonicalized to "sub-task".
func ParseIssueType(s string) (IssueType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "epic":
		return TypeEpic, nil
	case "task":
		return TypeTask, nil
	case "sub-task", "subtask":
		return TypeSubTask, nil
	case "issue":
		return TypeIssue, nil
	}
	return "", fmt.Errorf("unknown issue type %q (expected epic, task, or sub-task)", s)
}

// Label returns the type label for this kind, e.g. "type:epic".
func (t IssueType) Label() string {
	return "type:" + string(t)
}

// DisplayName returns the native issue-type name used by the GraphQL API,
// e.g. "Epic", "Task", "Sub-task".
func (t IssueType) DisplayName() string {
	switch t {
	case TypeEpic:
		return "Epic"
	case TypeTask:
		return "Task"
	case TypeSubTask:
		return "Sub-task"
	}
	return "Issue"
}

// ParentType returns the kind one level above, or TypeIssue for epics.
func (t IssueType) ParentType() IssueType {
	switch t {
	case TypeTask:
		return TypeEpic
	case TypeSubTask:
		return TypeTask
	}
	return TypeIssue
}

// WorkflowState is the seven-state lifecycle enforced on every managed issue.
type WorkflowState string

const (
	StateBacklog                    WorkflowState = "backlog"
	StatePlanning                   WorkflowState = "planning"
	StateAwaitingPlanApproval       WorkflowState = "awaiting-plan-approval"
	StatePlanApproved               WorkflowState = "plan-approved"
	StateInProgress                 WorkflowState = "in-progress"
	StateAwaitingCompletionApproval WorkflowState = "awaiting-completion-approval"
	StateClosed                     WorkflowState = "closed"
)

// AllWorkflowStates lists every state in lifecycle order.
var AllWorkflowStates = []WorkflowState{
	StateBacklog,
	StatePlanning,
	StateAwaitingPlanApproval,
	StatePlanApproved,
	StateInProgress,
	StateAwaitingCompletionApproval,
	StateClosed,
}

// ParseWorkflowState parses a state name as written in labels or board
// fields. Unknown names are an error; callers decide how to degrade.
func ParseWorkflowState(s string) (WorkflowState, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, st := range AllWorkflowStates {
		if name == string(st) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown workflow state %q", s)
}

// StatusLabelPrefix scopes the labels that carry workflow state.
const StatusLabelPrefix = "status:"

// Label returns the status label for this state, e.g. "status:backlog".
func (s WorkflowState) Label() string {
	return StatusLabelPrefix + string(s)
}

// IsStatusLabel reports whether name is a status:* label and returns the
// state it encodes. Malformed status labels return ok=false.
func IsStatusLabel(name string) (WorkflowState, bool) {
	if !strings.HasPrefix(name, StatusLabelPrefix) {
		return "", false
	}
	st, err := ParseWorkflowState(strings.TrimPrefix(name, StatusLabelPrefix))
	if err != nil {
		return "", false
	}
	return st, true
}

// TypeFromLabels infers the issue kind from type:* labels. Returns TypeIssue
// when no type label is present.
func TypeFromLabels(labels []string) IssueType {
	for _, l := range labels {
		if !strings.HasPrefix(l, "type:") {
			continue
		}
		if t, err := ParseIssueType(strings.TrimPrefix(l, "type:")); err == nil {
			return t
		}
	}
	return TypeIssue
}

// Todo is a single checkbox line inside a section.
type Todo struct {
	Text    string `json:"text"` // text after the checkbox marker, trimmed
	Checked bool   `json:"checked"`
	Line    int    `json:"line"` // 0-based line index into the parsed body
}

// Section is a level-2 heading plus the lines up to the next level-2 heading.
type Section struct {
	Title string `json:"title"` // original heading text, case preserved
	Body  string `json:"body"`  // raw lines between heading and next boundary
	Todos []Todo `json:"todos,omitempty"`
}

// KeyTitle returns the case-folded title used for section lookup.
func (s Section) KeyTitle() string {
	return strings.ToLower(strings.TrimSpace(s.Title))
}

// CompletedTodos counts checked todos.
func (s Section) CompletedTodos() int {
	n := 0
	for _, t := range s.Todos {
		if t.Checked {
			n++
		}
	}
	return n
}

// References holds the hierarchy links extracted from a body prelude.
type References struct {
	Parent          int   `json:"parent,omitempty"` // 0 when absent
	ReferencedTasks []int `json:"referenced_tasks,omitempty"`
}

// HasParent reports whether the prelude carried a parent back-reference.
func (r References) HasParent() bool { return r.Parent > 0 }

// LogEntry is one audit record of a workflow transition.
type LogEntry struct {
	From      WorkflowState `json:"from"`
	To        WorkflowState `json:"to"`
	Actor     string        `json:"actor"` // login without the @ prefix
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message,omitempty"`
}

// Issue is the remote work item as ghoo sees it. The lifecycle state is
// derived from the status backend, never stored by the service directly.
type Issue struct {
	Number    int           `json:"number"`
	NodeID    string        `json:"node_id,omitempty"` // opaque GraphQL identifier
	Title     string        `json:"title"`
	Body      string        `json:"body"`
	Type      IssueType     `json:"type"`
	State     WorkflowState `json:"state"`
	Labels    []string      `json:"labels,omitempty"`
	Assignees []string      `json:"assignees,omitempty"`
	Milestone string        `json:"milestone,omitempty"`
	Closed    bool          `json:"closed"`
	URL       string        `json:"url,omitempty"`
}

// ChildRef is a hierarchy child as reported by the hybrid client.
type ChildRef struct {
	Number int       `json:"number"`
	Title  string    `json:"title"`
	Closed bool      `json:"closed"`
	Type   IssueType `json:"type"`
}

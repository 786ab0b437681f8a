// Package workflow implements the seven-state lifecycle: the transition
// table, precondition checks, status projection onto the configured
// backend, and the append-only audit log embedded in the issue body.
package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/justynbrt/ghoo/internal/body"
	"github.com/justynbrt/ghoo/internal/config"
	"github.com/justynbrt/ghoo/internal/errors"
	"github.com/justynbrt/ghoo/internal/hybrid"
	"github.com/justynbrt/ghoo/internal/types"
)

// Transition names, as exposed on the command surface.
const (
	StartPlan   = "start-plan"
	SubmitPlan  = "submit-plan"
	ApprovePlan = "approve-plan"
	StartWork   = "start-work"
	SubmitWork  = "submit-work"
	ApproveWork = "approve-work"
)

// Transition is one edge of the workflow DAG.
type Transition struct {
	Name string
	From types.WorkflowState
	To   types.WorkflowState

	// precondition validates the issue against the transition's structural
	// requirements. Nil means unconditional.
	precondition func(ctx context.Context, e *Engine, issue *types.Issue, parsed *body.ParsedBody) error
}

// transitions is the full table, keyed by name.
var transitions = map[string]Transition{
	StartPlan:   {Name: StartPlan, From: types.StateBacklog, To: types.StatePlanning},
	SubmitPlan:  {Name: SubmitPlan, From: types.StatePlanning, To: types.StateAwaitingPlanApproval, precondition: checkRequiredSections},
	ApprovePlan: {Name: ApprovePlan, From: types.StateAwaitingPlanApproval, To: types.StatePlanApproved},
	StartWork:   {Name: StartWork, From: types.StatePlanApproved, To: types.StateInProgress},
	SubmitWork:  {Name: SubmitWork, From: types.StateInProgress, To: types.StateAwaitingCompletionApproval},
	ApproveWork: {Name: ApproveWork, From: types.StateAwaitingCompletionApproval, To: types.StateClosed, precondition: checkCompletion},
}

// Lookup returns the transition for a verb.
func Lookup(name string) (Transition, bool) {
	t, ok := transitions[name]
	return t, ok
}

// Backend is the slice of the hybrid client the engine depends on, split
// out so tests can drive the engine without HTTP fakes.
type Backend interface {
	GetIssue(ctx context.Context, number int) (*types.Issue, error)
	SetState(ctx context.Context, issue *types.Issue, to types.WorkflowState) error
	GetHierarchy(ctx context.Context, issue *types.Issue) (*hybrid.Hierarchy, error)
	UpdateBody(ctx context.Context, number int, newBody string) error
	CloseIssue(ctx context.Context, number int) error
	Actor(ctx context.Context) (string, error)
}

// Engine executes transitions.
type Engine struct {
	backend Backend
	cfg     *config.Config

	// now is swappable for tests.
	now func() time.Time
}

// New builds an engine over a backend.
func New(backend Backend, cfg *config.Config) *Engine {
	return &Engine{backend: backend, cfg: cfg, now: time.Now}
}

// WithClock fixes the timestamp source (tests).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Result reports one executed transition.
type Result struct {
	Issue   *types.Issue        `json:"issue"`
	From    types.WorkflowState `json:"from"`
	To      types.WorkflowState `json:"to"`
	Actor   string              `json:"actor"`
	Message string              `json:"message,omitempty"`
}

// Execute runs one named transition against an issue: read current state,
// check the edge and its preconditions, project the new state, and append
// the audit entry. The body and hierarchy are re-read inside this call so
// the check and the mutation share one snapshot.
func (e *Engine) Execute(ctx context.Context, name string, number int, message string) (*Result, error) {
	t, ok := Lookup(name)
	if !ok {
		return nil, errors.New(errors.CodeInternal, "unknown transition %q", name)
	}
	message = strings.TrimSpace(message)

	issue, err := e.backend.GetIssue(ctx, number)
	if err != nil {
		return nil, err
	}
	if issue.State != t.From {
		return nil, errors.IllegalTransition(string(issue.State), t.Name)
	}

	parsed := body.Parse(issue.Body)
	if t.precondition != nil {
		if err := t.precondition(ctx, e, issue, parsed); err != nil {
			return nil, err
		}
	}

	actor, err := e.backend.Actor(ctx)
	if err != nil {
		return nil, err
	}

	if err := e.backend.SetState(ctx, issue, t.To); err != nil {
		return nil, err
	}
	if t.To == types.StateClosed {
		if err := e.backend.CloseIssue(ctx, number); err != nil {
			return nil, err
		}
	}

	parsed.AppendLogEntry(types.LogEntry{
		From:      t.From,
		To:        t.To,
		Actor:     actor,
		Timestamp: e.now().UTC(),
		Message:   message,
	})
	rendered, err := parsed.Render()
	if err != nil {
		return nil, err
	}
	if err := e.backend.UpdateBody(ctx, number, rendered); err != nil {
		return nil, err
	}

	issue.State = t.To
	issue.Body = rendered
	issue.Closed = issue.Closed || t.To == types.StateClosed
	return &Result{Issue: issue, From: t.From, To: t.To, Actor: actor, Message: message}, nil
}

// checkRequiredSections enforces the per-kind section requirements before a
// plan can be submitted.
func checkRequiredSections(_ context.Context, e *Engine, issue *types.Issue, parsed *body.ParsedBody) error {
	return ValidateRequiredSections(parsed, e.cfg.SectionsFor(issue.Type))
}

// ValidateRequiredSections reports the sections missing from a parsed body.
// Matching is case-insensitive on the section title.
func ValidateRequiredSections(parsed *body.ParsedBody, required []string) error {
	var missing []string
	for _, want := range required {
		if parsed.FindSection(want) == nil {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return errors.RequiredSectionMissing(missing)
	}
	return nil
}

// checkCompletion blocks approve-work while any todo is unchecked or any
// child is open. Both are re-resolved here, against the same snapshot the
// transition will mutate.
func checkCompletion(ctx context.Context, e *Engine, issue *types.Issue, parsed *body.ParsedBody) error {
	var blocking []string

	hierarchy, err := e.backend.GetHierarchy(ctx, issue)
	if err != nil {
		return err
	}
	var open []int
	for _, child := range hierarchy.Children {
		if !child.Closed {
			open = append(open, child.Number)
		}
	}
	sort.Ints(open)
	for _, n := range open {
		blocking = append(blocking, fmt.Sprintf("open child #%d", n))
	}

	for _, todo := range parsed.UncheckedTodos() {
		blocking = append(blocking, fmt.Sprintf("unchecked todo %q in section %q", todo[1], todo[0]))
	}

	if len(blocking) > 0 {
		return errors.CompletionBlocked(blocking)
	}
	return nil
}

// FormatAuditLine renders the human-readable transition summary used in
// command output.
func FormatAuditLine(r *Result) string {
	line := fmt.Sprintf("State changed from `%s` to `%s` by @%s", r.From, r.To, r.Actor)
	if r.Message != "" {
		line += "\nReason: " + strings.TrimSpace(r.Message)
	}
	return line
}

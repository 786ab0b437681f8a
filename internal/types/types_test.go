package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIssueType(t *testing.T) {
	cases := map[string]IssueType{
		"epic":     TypeEpic,
		"Task":     TypeTask,
		"sub-task": TypeSubTask,
		"subtask":  TypeSubTask, // normalized spelling
		"SUBTASK":  TypeSubTask,
		"issue":    TypeIssue,
	}
	for in, want := range cases {
		got, err := ParseIssueType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseIssueType("story")
	assert.Error(t, err)
}

func TestIssueTypeHierarchy(t *testing.T) {
	assert.Equal(t, TypeIssue, TypeEpic.ParentType())
	assert.Equal(t, TypeEpic, TypeTask.ParentType())
	assert.Equal(t, TypeTask, TypeSubTask.ParentType())
}

func TestWorkflowStateLabels(t *testing.T) {
	assert.Equal(t, "status:backlog", StateBacklog.Label())
	assert.Equal(t, "status:awaiting-plan-approval", StateAwaitingPlanApproval.Label())

	st, ok := IsStatusLabel("status:in-progress")
	require.True(t, ok)
	assert.Equal(t, StateInProgress, st)

	_, ok = IsStatusLabel("status:bogus")
	assert.False(t, ok)
	_, ok = IsStatusLabel("type:epic")
	assert.False(t, ok)
}

func TestParseWorkflowState(t *testing.T) {
	for _, st := range AllWorkflowStates {
		got, err := ParseWorkflowState(string(st))
		require.NoError(t, err)
		assert.Equal(t, st, got)
	}
	_, err := ParseWorkflowState("done")
	assert.Error(t, err)
}

func TestTypeFromLabels(t *testing.T) {
	assert.Equal(t, TypeEpic, TypeFromLabels([]string{"bug", "type:epic"}))
	assert.Equal(t, TypeSubTask, TypeFromLabels([]string{"type:subtask"}))
	assert.Equal(t, TypeIssue, TypeFromLabels([]string{"bug"}))
	assert.Equal(t, TypeIssue, TypeFromLabels(nil))
}

func TestSectionHelpers(t *testing.T) {
	s := Section{
		Title: "Acceptance Criteria",
		Todos: []Todo{{Text: "a", Checked: true}, {Text: "b"}},
	}
	assert.Equal(t, "acceptance criteria", s.KeyTitle())
	assert.Equal(t, 1, s.CompletedTodos())
}

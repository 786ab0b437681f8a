package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justynbrt/ghoo/internal/body"
	"github.com/justynbrt/ghoo/internal/types"
)

func TestDefaultBodiesCarryRequiredSections(t *testing.T) {
	cases := []struct {
		kind     types.IssueType
		sections []string
	}{
		{types.TypeEpic, []string{"Summary", "Acceptance Criteria", "Milestone Plan"}},
		{types.TypeTask, []string{"Summary", "Acceptance Criteria", "Implementation Plan"}},
		{types.TypeSubTask, []string{"Summary", "Acceptance Criteria"}},
	}
	for _, tc := range cases {
		rendered, err := DefaultBody(tc.kind, Data{Title: "T", Parent: 10})
		require.NoError(t, err, tc.kind)

		parsed := body.Parse(rendered)
		for _, section := range tc.sections {
			assert.NotNil(t, parsed.FindSection(section), "%s body missing %q", tc.kind, section)
		}
	}
}

func TestChildTemplatesCarryParentReference(t *testing.T) {
	for _, kind := range []types.IssueType{types.TypeTask, types.TypeSubTask} {
		rendered, err := DefaultBody(kind, Data{Parent: 7})
		require.NoError(t, err)
		assert.Equal(t, 7, body.Parse(rendered).Refs.Parent, "%s template", kind)
	}
}

func TestEpicTemplateHasNoParent(t *testing.T) {
	rendered, err := DefaultBody(types.TypeEpic, Data{})
	require.NoError(t, err)
	assert.Zero(t, body.Parse(rendered).Refs.Parent)
}

func TestUnknownKind(t *testing.T) {
	_, err := DefaultBody(types.TypeIssue, Data{})
	assert.Error(t, err)
}

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{nil, ExitOK},
		{MissingCredential("GITHUB_TOKEN"), ExitAuth},
		{New(CodeInvalidCredential, "bad"), ExitAuth},
		{New(CodeConfigMissing, "no file"), ExitUser},
		{New(CodeAmbiguousMatch, "two"), ExitUser},
		{New(CodeBodyTooLarge, "big"), ExitUser},
		{New(CodeTimeout, "slow"), ExitRemote},
		{New(CodeRateLimited, "429"), ExitRemote},
		{RelationshipRequired("add_sub_issue_edge"), ExitRemote},
		{IllegalTransition("backlog", "approve-plan"), ExitWorkflow},
		{CompletionBlocked([]string{"open child #42"}), ExitWorkflow},
		{New(CodeInternal, "bug"), ExitInternal},
		{stderrors.New("unclassified"), ExitInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, ExitCode(tc.err), "%v", tc.err)
	}
}

func TestCodeSurvivesWrapping(t *testing.T) {
	inner := New(CodeIssueNotFound, "issue #9 not found")
	wrapped := fmt.Errorf("fetching issue: %w", inner)
	assert.Equal(t, CodeIssueNotFound, CodeOf(wrapped))
	assert.True(t, IsCode(wrapped, CodeIssueNotFound))
}

func TestAsErrorWrapsUnclassified(t *testing.T) {
	e := AsError(stderrors.New("boom"))
	assert.Equal(t, CodeInternal, e.Code)
	assert.Equal(t, "boom", e.Message)
}

func TestFeatureOf(t *testing.T) {
	err := FeatureUnavailable(FeatureSubIssues)
	assert.Equal(t, FeatureSubIssues, FeatureOf(err))

	wrapped := fmt.Errorf("linking: %w", err)
	assert.Equal(t, FeatureSubIssues, FeatureOf(wrapped))

	assert.Empty(t, FeatureOf(New(CodeForbidden, "no")))
}

func TestRequiredSectionMissingCarriesOptions(t *testing.T) {
	err := RequiredSectionMissing([]string{"Summary", "Milestone Plan"})
	require.Equal(t, CodeRequiredSectionMissing, err.Code)
	assert.Equal(t, []string{"Summary", "Milestone Plan"}, err.ValidOptions)
	assert.Contains(t, err.Error(), "Summary, Milestone Plan")
}

func TestHintRendering(t *testing.T) {
	err := MissingCredential("GITHUB_TOKEN")
	assert.Contains(t, err.Hint, "GITHUB_TOKEN")
}

package body

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justynbrt/ghoo/internal/types"
)

const sampleBody = "This epic tracks the new auth stack.\n" +
	"\n" +
	"**Parent:** #7\n" +
	"\n" +
	"- [ ] #12\n" +
	"- [x] #13\n" +
	"\n" +
	"## Summary\n" +
	"\n" +
	"Rework login and session handling.\n" +
	"\n" +
	"## Acceptance Criteria\n" +
	"\n" +
	"- [ ] Sessions expire after 30 days\n" +
	"- [x] Login rejects bad passwords\n" +
	"\n" +
	"### Notes\n" +
	"\n" +
	"Deeper headings stay inside the section.\n" +
	"\n" +
	"## Log\n" +
	"\n" +
	"### 2025-05-01T10:00:00Z\n" +
	"State changed from `backlog` to `planning` by @alice\n" +
	"\n" +
	"### 2025-05-02T09:30:00Z\n" +
	"State changed from `planning` to `awaiting-plan-approval` by @alice\n" +
	"Reason: plan ready for review\n"

func TestParseSampleBody(t *testing.T) {
	p := Parse(sampleBody)

	assert.Contains(t, p.Prelude, "This epic tracks the new auth stack.")
	assert.Equal(t, 7, p.Refs.Parent)
	assert.Equal(t, []int{12, 13}, p.Refs.ReferencedTasks)

	require.Len(t, p.Sections, 2)
	assert.Equal(t, "Summary", p.Sections[0].Title)
	assert.Equal(t, "Acceptance Criteria", p.Sections[1].Title)

	ac := p.Sections[1]
	require.Len(t, ac.Todos, 2)
	assert.Equal(t, "Sessions expire after 30 days", ac.Todos[0].Text)
	assert.False(t, ac.Todos[0].Checked)
	assert.True(t, ac.Todos[1].Checked)
	assert.Contains(t, ac.Body, "### Notes")

	require.NotNil(t, p.Log)
	entries := p.LogEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, types.StateBacklog, entries[0].From)
	assert.Equal(t, types.StatePlanning, entries[0].To)
	assert.Equal(t, "alice", entries[0].Actor)
	assert.Empty(t, entries[0].Message)
	assert.Equal(t, "plan ready for review", entries[1].Message)
	assert.Equal(t, "2025-05-02T09:30:00Z", entries[1].Timestamp.Format("2006-01-02T15:04:05Z07:00"))
}

func TestParseEmptyBody(t *testing.T) {
	p := Parse("")
	assert.Empty(t, p.Prelude)
	assert.Empty(t, p.Sections)
	assert.Nil(t, p.Log)
	assert.Zero(t, p.Refs.Parent)

	out, err := p.Render()
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestParseNoSections(t *testing.T) {
	raw := "just a hand-written body\nwith two lines and no headings"
	p := Parse(raw)
	assert.Equal(t, raw, p.Prelude)
	assert.Empty(t, p.Sections)

	out, err := p.Render()
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestRoundTripByteIdentity(t *testing.T) {
	bodies := []string{
		sampleBody,
		"",
		"prelude only",
		"no trailing newline\n\n## Tasks\n- [ ] one",
		"## Only\ncontent\n",
		"mixed\r\nline\nendings\r\n\r\n## S\r\n- [x] done\r\n",
		"## Empty Section\n\n## Another\n",
	}
	for _, raw := range bodies {
		out, err := Parse(raw).Render()
		require.NoError(t, err)
		assert.Equal(t, raw, out)
	}
}

func TestFencedCodeBlockIsOpaque(t *testing.T) {
	raw := "## Example\n" +
		"\n" +
		"```\n" +
		"- [ ] foo\n" +
		"## not a section\n" +
		"```\n" +
		"\n" +
		"- [ ] real todo\n"
	p := Parse(raw)

	require.Len(t, p.Sections, 1)
	require.Len(t, p.Sections[0].Todos, 1)
	assert.Equal(t, "real todo", p.Sections[0].Todos[0].Text)

	out, err := p.Render()
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestParentReferenceVariants(t *testing.T) {
	cases := map[string]int{
		"**Parent:** #10\n## S\n":  10,
		"**parent** #3\n":          3,
		"Parent: #42\n":            42,
		"no parent here\n":         0,
		"**Parent:** #1\nParent: #2\n": 1, // first reference wins
	}
	for raw, want := range cases {
		p := Parse(raw)
		assert.Equal(t, want, p.Refs.Parent, "body: %q", raw)
	}
}

func TestDeepHeadingsAreSectionContent(t *testing.T) {
	p := Parse("## Top\n### Inner\n#### Deeper\ntext\n")
	require.Len(t, p.Sections, 1)
	assert.Contains(t, p.Sections[0].Body, "### Inner")
	assert.Contains(t, p.Sections[0].Body, "#### Deeper")
}

func TestLegacySingleLineLogEntry(t *testing.T) {
	raw := "## Log\n" +
		"State changed from `backlog` to `planning` by @bob at 2025-06-01T08:00:00Z\n"
	p := Parse(raw)
	entries := p.LogEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "bob", entries[0].Actor)
	assert.Equal(t, 2025, entries[0].Timestamp.Year())
}

func TestCaseInsensitiveSectionLookup(t *testing.T) {
	p := Parse("## Acceptance Criteria\n- [ ] a\n")
	require.NotNil(t, p.FindSection("acceptance criteria"))
	require.NotNil(t, p.FindSection("ACCEPTANCE CRITERIA"))
	assert.Nil(t, p.FindSection("summary"))
}

func TestUncheckedTodos(t *testing.T) {
	p := Parse("## A\n- [ ] one\n- [x] two\n## B\n- [ ] three\n")
	unchecked := p.UncheckedTodos()
	require.Len(t, unchecked, 2)
	assert.Equal(t, [2]string{"A", "one"}, unchecked[0])
	assert.Equal(t, [2]string{"B", "three"}, unchecked[1])
}

package body

import (
	"fmt"
	"strings"
	"time"

	"github.com/justynbrt/ghoo/internal/errors"
	"github.com/justynbrt/ghoo/internal/types"
)

// MaxBodySize is GitHub's documented ceiling on issue body length, in UTF-16
// code units. The writer refuses to emit anything larger.
const MaxBodySize = 65536

// Render serializes the body back to Markdown. Lines that no edit touched
// are emitted with their original bytes and terminators.
func (p *ParsedBody) Render() (string, error) {
	var b strings.Builder
	for _, ln := range p.lines {
		b.WriteString(ln.text)
		b.WriteString(ln.eol)
	}
	out := b.String()
	if utf16Len(out) > MaxBodySize {
		return "", errors.New(errors.CodeBodyTooLarge,
			"body is %d code units, exceeding the %d limit", utf16Len(out), MaxBodySize)
	}
	return out, nil
}

// utf16Len counts UTF-16 code units, which is how the service measures body
// size.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// insertLines splices newly written lines at index i. Inserted lines get a
// plain "\n" terminator; if insertion happens past a final unterminated
// line, that line gains a terminator so the result stays well-formed.
func (p *ParsedBody) insertLines(i int, texts ...string) {
	if i > len(p.lines) {
		i = len(p.lines)
	}
	if i == len(p.lines) && len(p.lines) > 0 && p.lines[len(p.lines)-1].eol == "" {
		p.lines[len(p.lines)-1].eol = "\n"
	}
	ins := make([]line, len(texts))
	for j, t := range texts {
		ins[j] = line{text: t, eol: "\n"}
	}
	p.lines = append(p.lines[:i], append(ins, p.lines[i:]...)...)
}

// sectionInsertionPoint finds where a new todo line belongs: after the last
// non-blank line of the section, so trailing blank padding stays below it.
func (p *ParsedBody) sectionInsertionPoint(s *Section) int {
	at := s.HeadingLine + 1
	for i := s.HeadingLine + 1; i < s.EndLine; i++ {
		if strings.TrimSpace(p.lines[i].text) != "" {
			at = i + 1
		}
	}
	return at
}

// AddTodo appends an unchecked todo at the end of the named section.
// Duplicate detection is by exact text match within the section.
func (p *ParsedBody) AddTodo(sectionTitle, text string) error {
	s := p.FindSection(sectionTitle)
	if s == nil {
		return errors.New(errors.CodeSectionNotFound, "section %q not found", sectionTitle).
			WithOptions(p.SectionTitles())
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New(errors.CodeUsage, "todo text must not be empty")
	}
	for _, t := range s.Todos {
		if t.Text == text {
			return errors.New(errors.CodeDuplicateTodo,
				"todo %q already exists in section %q", text, s.Title)
		}
	}
	p.insertLines(p.sectionInsertionPoint(s), "- [ ] "+text)
	p.scan()
	return nil
}

// EnsureSection returns the named section, appending an empty one at the end
// of the section list (before the log block) when absent.
func (p *ParsedBody) EnsureSection(title string) *Section {
	if s := p.FindSection(title); s != nil {
		return s
	}
	p.appendSectionHeading(title)
	p.scan()
	return p.FindSection(title)
}

// appendSectionHeading writes "## Title" after the last section and before
// the log block.
func (p *ParsedBody) appendSectionHeading(title string) {
	at := len(p.lines)
	if p.Log != nil {
		at = p.Log.HeadingLine
	}
	var texts []string
	if at > 0 && strings.TrimSpace(p.lines[at-1].text) != "" {
		texts = append(texts, "")
	}
	texts = append(texts, "## "+strings.TrimSpace(title), "")
	p.insertLines(at, texts...)
}

// ToggleTodo flips the checkbox of the single todo in the named section
// whose text contains match (case-insensitive). Returns the todo after the
// flip. Zero matches and multiple matches are distinct user errors.
func (p *ParsedBody) ToggleTodo(sectionTitle, match string) (types.Todo, error) {
	s := p.FindSection(sectionTitle)
	if s == nil {
		return types.Todo{}, errors.New(errors.CodeSectionNotFound, "section %q not found", sectionTitle).
			WithOptions(p.SectionTitles())
	}

	needle := strings.ToLower(match)
	var hits []types.Todo
	for _, t := range s.Todos {
		if strings.Contains(strings.ToLower(t.Text), needle) {
			hits = append(hits, t)
		}
	}
	switch len(hits) {
	case 0:
		var all []string
		for _, t := range s.Todos {
			all = append(all, t.Text)
		}
		return types.Todo{}, errors.New(errors.CodeUsage,
			"no todo matching %q in section %q", match, s.Title).WithOptions(all)
	case 1:
	default:
		var candidates []string
		for _, t := range hits {
			candidates = append(candidates, t.Text)
		}
		return types.Todo{}, errors.New(errors.CodeAmbiguousMatch,
			"%q matches %d todos in section %q", match, len(hits), s.Title).
			WithOptions(candidates)
	}

	hit := hits[0]
	old := p.lines[hit.Line].text
	var replaced string
	if hit.Checked {
		replaced = strings.Replace(old, "- [x] ", "- [ ] ", 1)
		replaced = strings.Replace(replaced, "- [X] ", "- [ ] ", 1)
	} else {
		replaced = strings.Replace(old, "- [ ] ", "- [x] ", 1)
	}
	p.lines[hit.Line].text = replaced
	p.scan()

	hit.Checked = !hit.Checked
	return hit, nil
}

// SetSectionBody replaces the content lines of a section, keeping the
// heading line untouched.
func (p *ParsedBody) SetSectionBody(sectionTitle, content string) error {
	s := p.FindSection(sectionTitle)
	if s == nil {
		return errors.New(errors.CodeSectionNotFound, "section %q not found", sectionTitle).
			WithOptions(p.SectionTitles())
	}
	p.lines = append(p.lines[:s.HeadingLine+1], p.lines[s.EndLine:]...)
	var texts []string
	texts = append(texts, "")
	texts = append(texts, strings.Split(strings.TrimRight(content, "\n"), "\n")...)
	texts = append(texts, "")
	p.insertLines(s.HeadingLine+1, texts...)
	p.scan()
	return nil
}

// SetParentReference ensures the prelude begins with the canonical parent
// back-reference line. An existing parent line is rewritten in place.
func (p *ParsedBody) SetParentReference(parent int) {
	ref := fmt.Sprintf("**Parent:** #%d", parent)
	for i := 0; i < p.preludeEnd; i++ {
		if parentPattern.MatchString(p.lines[i].text) {
			p.lines[i].text = ref
			p.scan()
			return
		}
	}
	if len(p.lines) == 0 {
		p.insertLines(0, ref)
	} else {
		p.insertLines(0, ref, "")
	}
	p.scan()
}

// AppendLogEntry appends an audit record to the log block, writing the
// sentinel heading first when the block does not exist yet.
func (p *ParsedBody) AppendLogEntry(e types.LogEntry) {
	if p.Log == nil {
		at := len(p.lines)
		var texts []string
		if at > 0 && strings.TrimSpace(p.lines[at-1].text) != "" {
			texts = append(texts, "")
		}
		texts = append(texts, LogHeading)
		p.insertLines(at, texts...)
		p.scan()
	}

	texts := []string{
		"",
		"### " + e.Timestamp.UTC().Format(time.RFC3339),
		fmt.Sprintf("State changed from `%s` to `%s` by @%s", e.From, e.To, e.Actor),
	}
	if e.Message != "" {
		texts = append(texts, "Reason: "+e.Message)
	}
	p.insertLines(len(p.lines), texts...)
	p.scan()
}

// Replace swaps in an entirely new body.
func (p *ParsedBody) Replace(raw string) {
	p.lines = splitLines(raw)
	p.scan()
}

// Package body implements the lossless Markdown body parser and writer.
//
// The parser is a hand-written line scanner, not a CommonMark parser: section
// headings, todo checkboxes, prelude references, and the trailing log block
// are recognized by line-prefix rules, and fenced code blocks are opaque.
// The original lines (with their line terminators) are retained so that the
// writer can re-emit untouched regions byte-for-byte.
package body

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/justynbrt/ghoo/internal/types"
)

// LogHeading is the sentinel level-2 heading that introduces the audit log
// block at the tail of a body.
const LogHeading = "## Log"

// line is one source line with its original terminator ("\n", "\r\n", or ""
// for a final unterminated line).
type line struct {
	text string
	eol  string
}

// Section is a parsed section plus its span in the source line slice.
type Section struct {
	types.Section
	HeadingLine int // index of the "## Title" line
	EndLine     int // exclusive; first line after the section
}

// LogBlock is the parsed audit region.
type LogBlock struct {
	HeadingLine int // index of the "## Log" line
	Entries     []types.LogEntry
}

// ParsedBody is the document model for one issue body.
type ParsedBody struct {
	lines []line

	Prelude    string // text before the first level-2 heading, trimmed
	preludeEnd int    // exclusive line index of the prelude region

	Sections []*Section
	Refs     types.References
	Log      *LogBlock
}

var (
	sectionPattern = regexp.MustCompile(`^## (.+)$`)
	todoPattern    = regexp.MustCompile(`^- \[([ xX])\] (.+)$`)
	fencePattern   = regexp.MustCompile("^(```|~~~)")

	// Parent back-reference in the prelude. Bold markers and the colon are
	// flexible because hand-edited bodies drift: "**Parent:** #5",
	// "Parent: #5", "**parent** #5" all count.
	parentPattern = regexp.MustCompile(`(?i)^\*{0,2}parent:?\*{0,2}:?\s*#(\d+)`)

	// Tasklist references in an epic prelude: "- [ ] #12".
	taskRefPattern = regexp.MustCompile(`^- \[.\]\s*#(\d+)`)

	// Log entry heading: "### <ISO-8601 timestamp>".
	logEntryPattern = regexp.MustCompile(`^### (.+)$`)

	// Transition line inside a log entry. The trailing "at <ts>" form is the
	// single-line legacy layout; the timestamp heading wins when both exist.
	transitionPattern = regexp.MustCompile("^State changed from `([^`]*)` to `([^`]*)` by @(\\S+?)(?: at (.+))?$")
)

// splitLines cuts raw into lines, keeping each line's terminator so the
// writer can reproduce the input exactly (including mixed CRLF and a missing
// final newline).
func splitLines(raw string) []line {
	if raw == "" {
		return nil
	}
	var out []line
	start := 0
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\n' {
			continue
		}
		text := raw[start:i]
		eol := "\n"
		if strings.HasSuffix(text, "\r") {
			text = text[:len(text)-1]
			eol = "\r\n"
		}
		out = append(out, line{text: text, eol: eol})
		start = i + 1
	}
	if start < len(raw) {
		out = append(out, line{text: raw[start:], eol: ""})
	}
	return out
}

// Parse builds a ParsedBody from raw Markdown. It never fails: malformed
// constructs degrade to plain content of the enclosing region.
func Parse(raw string) *ParsedBody {
	p := &ParsedBody{lines: splitLines(raw)}
	p.scan()
	return p
}

// scan (re)derives sections, references, and the log block from p.lines.
// Called after every mutation so spans stay valid.
func (p *ParsedBody) scan() {
	p.Sections = nil
	p.Log = nil
	p.Refs = types.References{}
	p.Prelude = ""
	p.preludeEnd = len(p.lines)

	var current *Section
	var sectionStart int
	inFence := false
	firstHeading := -1

	closeSection := func(end int) {
		if current == nil {
			return
		}
		current.EndLine = end
		var bodyLines []string
		for i := sectionStart; i < end; i++ {
			bodyLines = append(bodyLines, p.lines[i].text)
		}
		current.Body = strings.TrimRight(strings.Join(bodyLines, "\n"), "\n \t")
		p.Sections = append(p.Sections, current)
		current = nil
	}

	for i := 0; i < len(p.lines); i++ {
		text := p.lines[i].text

		if fencePattern.MatchString(strings.TrimLeft(text, " \t")) {
			inFence = !inFence
		}

		m := sectionPattern.FindStringSubmatch(text)
		if m == nil || inFence {
			if current != nil {
				if td := todoPattern.FindStringSubmatch(text); td != nil && !inFence {
					current.Todos = append(current.Todos, types.Todo{
						Text:    strings.TrimSpace(td[2]),
						Checked: td[1] == "x" || td[1] == "X",
						Line:    i,
					})
				}
			}
			continue
		}

		closeSection(i)
		if firstHeading < 0 {
			firstHeading = i
			p.preludeEnd = i
		}

		title := strings.TrimSpace(m[1])
		if strings.EqualFold(title, "log") && p.Log == nil {
			// The log block runs to the end of the body; anything after the
			// sentinel belongs to it, including further "### " headings.
			p.Log = p.parseLogBlock(i)
			p.scanPrelude()
			return
		}

		current = &Section{
			Section:     types.Section{Title: title},
			HeadingLine: i,
		}
		sectionStart = i + 1
	}
	closeSection(len(p.lines))

	if firstHeading < 0 {
		p.preludeEnd = len(p.lines)
	}
	p.scanPrelude()
}

// scanPrelude extracts the prelude text and hierarchy references.
func (p *ParsedBody) scanPrelude() {
	var preludeLines []string
	for i := 0; i < p.preludeEnd; i++ {
		text := p.lines[i].text
		preludeLines = append(preludeLines, text)

		if !p.Refs.HasParent() {
			if m := parentPattern.FindStringSubmatch(text); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil {
					p.Refs.Parent = n
				}
			}
		}
		if m := taskRefPattern.FindStringSubmatch(text); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				p.Refs.ReferencedTasks = append(p.Refs.ReferencedTasks, n)
			}
		}
	}
	p.Prelude = strings.TrimSpace(strings.Join(preludeLines, "\n"))
}

// parseLogBlock parses the region from the sentinel heading to end-of-body.
func (p *ParsedBody) parseLogBlock(headingLine int) *LogBlock {
	block := &LogBlock{HeadingLine: headingLine}
	var entry *types.LogEntry
	var reason []string

	flush := func() {
		if entry == nil {
			return
		}
		entry.Message = strings.TrimSpace(strings.Join(reason, "\n"))
		block.Entries = append(block.Entries, *entry)
		entry = nil
		reason = nil
	}

	for i := headingLine + 1; i < len(p.lines); i++ {
		text := p.lines[i].text

		if m := logEntryPattern.FindStringSubmatch(text); m != nil {
			flush()
			entry = &types.LogEntry{}
			if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(m[1])); err == nil {
				entry.Timestamp = ts.UTC()
			}
			continue
		}

		if m := transitionPattern.FindStringSubmatch(text); m != nil {
			if entry == nil {
				entry = &types.LogEntry{}
			}
			entry.From = types.WorkflowState(m[1])
			entry.To = types.WorkflowState(m[2])
			entry.Actor = m[3]
			if m[4] != "" && entry.Timestamp.IsZero() {
				if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(m[4])); err == nil {
					entry.Timestamp = ts.UTC()
				}
			}
			continue
		}

		if entry != nil {
			trimmed := strings.TrimSpace(text)
			if rest, ok := strings.CutPrefix(trimmed, "Reason:"); ok {
				reason = append(reason, strings.TrimSpace(rest))
			} else if len(reason) > 0 && trimmed != "" {
				reason = append(reason, trimmed)
			}
		}
	}
	flush()
	return block
}

// FindSection returns the section matching title case-insensitively, or nil.
func (p *ParsedBody) FindSection(title string) *Section {
	key := strings.ToLower(strings.TrimSpace(title))
	for _, s := range p.Sections {
		if s.KeyTitle() == key {
			return s
		}
	}
	return nil
}

// SectionTitles returns the original titles in document order.
func (p *ParsedBody) SectionTitles() []string {
	out := make([]string, 0, len(p.Sections))
	for _, s := range p.Sections {
		out = append(out, s.Title)
	}
	return out
}

// UncheckedTodos returns (section title, todo text) pairs for every
// unchecked todo, in document order.
func (p *ParsedBody) UncheckedTodos() [][2]string {
	var out [][2]string
	for _, s := range p.Sections {
		for _, t := range s.Todos {
			if !t.Checked {
				out = append(out, [2]string{s.Title, t.Text})
			}
		}
	}
	return out
}

// LogEntries returns the parsed audit entries, oldest first.
func (p *ParsedBody) LogEntries() []types.LogEntry {
	if p.Log == nil {
		return nil
	}
	return p.Log.Entries
}

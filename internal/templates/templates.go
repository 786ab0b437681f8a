// Package templates provides the default issue bodies generated for each
// kind when a creation command is given no body. The templates are embedded
// files so the starter structure stays editable without touching Go code.
package templates

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/justynbrt/ghoo/internal/types"
)

//go:embed defaults/*.md.tmpl
var defaults embed.FS

// Data is the template input.
type Data struct {
	Title  string
	Parent int // 0 for epics
}

var files = map[types.IssueType]string{
	types.TypeEpic:    "defaults/epic.md.tmpl",
	types.TypeTask:    "defaults/task.md.tmpl",
	types.TypeSubTask: "defaults/subtask.md.tmpl",
}

// DefaultBody renders the starter body for a kind.
func DefaultBody(kind types.IssueType, data Data) (string, error) {
	file, ok := files[kind]
	if !ok {
		return "", fmt.Errorf("no body template for issue type %q", kind)
	}
	raw, err := defaults.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("reading template %s: %w", file, err)
	}
	tmpl, err := template.New(file).Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("parsing template %s: %w", file, err)
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", file, err)
	}
	return out.String(), nil
}

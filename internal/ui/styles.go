// Package ui provides terminal styling for ghoo CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/justynbrt/ghoo/internal/types"
)

// Ayu theme color palette
// Dark: https://terminalcolors.com/themes/ayu/dark/
// Light: https://terminalcolors.com/themes/ayu/light/
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300", // ayu light bright green
		Dark:  "#c2d94c", // ayu dark bright green
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49", // ayu light bright yellow
		Dark:  "#ffb454", // ayu dark bright yellow
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171", // ayu light bright red
		Dark:  "#f07178", // ayu dark bright red
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99", // ayu light muted
		Dark:  "#6c7680", // ayu dark muted
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6", // ayu light bright blue
		Dark:  "#59c2ff", // ayu dark bright blue
	}
)

var (
	PassStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	FailStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)

	// TitleStyle renders issue titles and section headers.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// Status icons.
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
)

// RenderState colors a workflow state by how far along the lifecycle it is.
func RenderState(s types.WorkflowState) string {
	if !ShouldUseColor() {
		return string(s)
	}
	switch s {
	case types.StateClosed:
		return PassStyle.Render(string(s))
	case types.StateInProgress, types.StatePlanApproved:
		return AccentStyle.Render(string(s))
	case types.StateAwaitingPlanApproval, types.StateAwaitingCompletionApproval:
		return WarnStyle.Render(string(s))
	}
	return MutedStyle.Render(string(s))
}

// RenderKind colors an issue kind.
func RenderKind(t types.IssueType) string {
	if !ShouldUseColor() {
		return t.DisplayName()
	}
	return AccentStyle.Render(t.DisplayName())
}

// RenderMuted dims auxiliary text.
func RenderMuted(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return MutedStyle.Render(s)
}

// RenderTitle emphasizes a heading line.
func RenderTitle(s string) string {
	if !ShouldUseColor() {
		return s
	}
	return TitleStyle.Render(s)
}

// ChildMarker renders the open/closed marker for a hierarchy listing.
func ChildMarker(closed bool) string {
	if closed {
		if ShouldUseColor() {
			return PassStyle.Render(IconPass)
		}
		return IconPass
	}
	if ShouldUseColor() {
		return MutedStyle.Render("○")
	}
	return "○"
}

// TodoMarker renders a checkbox for display.
func TodoMarker(checked bool) string {
	if checked {
		return "[x]"
	}
	return "[ ]"
}

// Indent prefixes every line of s with n spaces.
func Indent(s string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = pad + l
		}
	}
	return strings.Join(lines, "\n")
}

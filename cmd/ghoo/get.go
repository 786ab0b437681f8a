package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/justynbrt/ghoo/internal/body"
	"github.com/justynbrt/ghoo/internal/errors"
	"github.com/justynbrt/ghoo/internal/hybrid"
	"github.com/justynbrt/ghoo/internal/types"
	"github.com/justynbrt/ghoo/internal/ui"
)

// getResult is the enriched view returned by get, shaped for both machine
// and human rendering.
type getResult struct {
	Issue     *types.Issue      `json:"issue"`
	Sections  []types.Section   `json:"sections"`
	Prelude   string            `json:"prelude,omitempty"`
	Log       []types.LogEntry  `json:"log,omitempty"`
	Hierarchy *hybrid.Hierarchy `json:"hierarchy,omitempty"`
}

var getCmd = &cobra.Command{
	Use:   "get <kind>",
	Short: "Fetch an issue with its parsed body and hierarchy",
	Long: `Fetch an issue, parse its body into sections, todos, and audit log,
and enrich it with the hierarchy view: parent and children for a task,
children for an epic.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kind, err := types.ParseIssueType(args[0])
		if err != nil {
			fail(errors.New(errors.CodeUsage, "%v", err))
		}
		number, _ := cmd.Flags().GetInt("id")
		if number <= 0 {
			fail(errors.New(errors.CodeUsage, "--id must name the issue number"))
		}
		format, _ := cmd.Flags().GetString("format")
		if format != "rich" && format != "json" {
			fail(errors.New(errors.CodeUsage, "--format %q is invalid", format).
				WithOptions([]string{"rich", "json"}))
		}

		s, err := newSession()
		if err != nil {
			fail(err)
		}
		ctx := rootCtx

		issue, err := s.client.GetIssue(ctx, number)
		if err != nil {
			fail(err)
		}
		if issue.Type != kind && issue.Type != types.TypeIssue {
			warn("issue #%d is a %s, not a %s", number, issue.Type.DisplayName(), kind.DisplayName())
		}

		parsed := body.Parse(issue.Body)
		result := &getResult{
			Issue:   issue,
			Prelude: parsed.Prelude,
			Log:     parsed.LogEntries(),
		}
		for _, sec := range parsed.Sections {
			result.Sections = append(result.Sections, sec.Section)
		}

		// Hierarchy enrichment: children for epics, parent and children
		// for tasks, parent for sub-tasks.
		hierarchy, err := s.client.GetHierarchy(ctx, issue)
		if err == nil {
			result.Hierarchy = hierarchy
		} else {
			warn("hierarchy unavailable for #%d: %v", number, err)
		}

		if jsonOutput || format == "json" {
			outputJSON(result)
			return
		}
		renderIssue(result)
	},
}

func init() {
	getCmd.Flags().Int("id", 0, "issue number (required)")
	_ = getCmd.MarkFlagRequired("id")
	getCmd.Flags().String("format", "rich", "output format: rich or json")
	rootCmd.AddCommand(getCmd)
}

func renderIssue(r *getResult) {
	issue := r.Issue
	fmt.Printf("%s %s\n", ui.RenderTitle(fmt.Sprintf("#%d %s", issue.Number, issue.Title)),
		ui.RenderMuted("["+issue.Type.DisplayName()+"]"))
	fmt.Printf("state: %s\n", ui.RenderState(issue.State))
	if issue.Milestone != "" {
		fmt.Printf("milestone: %s\n", issue.Milestone)
	}
	if len(issue.Assignees) > 0 {
		fmt.Printf("assignees: %v\n", issue.Assignees)
	}

	if h := r.Hierarchy; h != nil {
		if h.Parent != nil {
			fmt.Printf("parent: #%d %s %s\n", h.Parent.Number, h.Parent.Title,
				ui.ChildMarker(h.Parent.Closed))
		}
		if len(h.Children) > 0 {
			fmt.Printf("children (%s):\n", h.Source)
			for _, c := range h.Children {
				fmt.Printf("  %s #%d %s %s\n", ui.ChildMarker(c.Closed), c.Number, c.Title,
					ui.RenderMuted(c.Type.DisplayName()))
			}
		}
	}

	fmt.Println()
	fmt.Print(ui.RenderMarkdown(issue.Body))
}

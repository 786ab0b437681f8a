package main

import (
	"github.com/spf13/cobra"

	"github.com/justynbrt/ghoo/internal/body"
	"github.com/justynbrt/ghoo/internal/errors"
	"github.com/justynbrt/ghoo/internal/hybrid"
	"github.com/justynbrt/ghoo/internal/templates"
	"github.com/justynbrt/ghoo/internal/types"
)

// addCreateFlags registers the options shared by all three creation verbs.
func addCreateFlags(cmd *cobra.Command) {
	cmd.Flags().String("title", "", "issue title (required)")
	_ = cmd.MarkFlagRequired("title")
	addTextFlags(cmd, "body", "issue body")
	cmd.Flags().String("labels", "", "comma-separated labels")
	cmd.Flags().String("assignees", "", "comma-separated assignee logins")
	cmd.Flags().String("milestone", "", "milestone title")
}

// runCreate is the shared creation path: validate, prepare the body and
// label set, and delegate the composite create to the hybrid client.
// parentFlag is empty for epics.
func runCreate(cmd *cobra.Command, kind types.IssueType, parentFlag string) {
	s, err := newSession()
	if err != nil {
		fail(err)
	}
	ctx := rootCtx

	title, _ := cmd.Flags().GetString("title")
	labelsFlag, _ := cmd.Flags().GetString("labels")
	assigneesFlag, _ := cmd.Flags().GetString("assignees")
	milestoneFlag, _ := cmd.Flags().GetString("milestone")

	var parent int
	if parentFlag != "" {
		parent, err = cmd.Flags().GetInt(parentFlag)
		if err != nil || parent <= 0 {
			fail(errors.New(errors.CodeUsage, "--%s must name the parent issue number", parentFlag))
		}
		if err := requireParentKind(ctx, s, parent, kind.ParentType()); err != nil {
			fail(err)
		}
	}

	bodyText, hasBody, err := textInput(cmd, "body")
	if err != nil {
		fail(err)
	}
	if !hasBody {
		bodyText, err = templates.DefaultBody(kind, templates.Data{Title: title, Parent: parent})
		if err != nil {
			fail(errors.Wrap(errors.CodeInternal, err, "generating default body: %v", err))
		}
	} else if parent > 0 {
		// A custom child body must still name its parent.
		parsed := body.Parse(bodyText)
		if parsed.Refs.Parent != parent {
			parsed.SetParentReference(parent)
		}
		bodyText, err = parsed.Render()
		if err != nil {
			fail(err)
		}
	}
	// Size is validated before anything is created remotely.
	if _, err := body.Parse(bodyText).Render(); err != nil {
		fail(err)
	}

	milestone, err := resolveMilestone(ctx, s, milestoneFlag)
	if err != nil {
		fail(err)
	}

	result, err := s.client.Create(ctx, hybrid.CreateRequest{
		Kind:           kind,
		Title:          title,
		Body:           bodyText,
		Labels:         creationLabels(splitCommaList(labelsFlag)),
		Assignees:      splitCommaList(assigneesFlag),
		Milestone:      milestone,
		Parent:         parent,
		ParentRequired: parent > 0,
	})
	if err != nil {
		fail(err)
	}

	if jsonOutput {
		outputJSON(result)
		return
	}
	renderCreateResult(kind, result)
}

func renderCreateResult(kind types.IssueType, result *hybrid.CreateResult) {
	issue := result.Issue
	say("Created %s #%d: %s", kind.DisplayName(), issue.Number, issue.Title)
	if issue.URL != "" {
		say("  %s", issue.URL)
	}
	if result.TypeFallback {
		say("  type: %s (label fallback)", kind.Label())
	}
	if result.Fallback != "" {
		say("  parent link: %s", result.Fallback)
	}
}

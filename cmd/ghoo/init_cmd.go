package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/justynbrt/ghoo/internal/errors"
	"github.com/justynbrt/ghoo/internal/hybrid"
	"github.com/justynbrt/ghoo/internal/types"
	"github.com/justynbrt/ghoo/internal/ui"
)

// initItem is the per-asset outcome of init: created, existing, fallback,
// or error. Init never fails fast; it reports everything it touched.
type initItem struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"` // "issue-type" or "label"
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

type initReport struct {
	Items  []initItem `json:"items"`
	Errors int        `json:"errors"`
}

// statusLabelColors give each lifecycle stage a stable hue.
var statusLabelColors = map[types.WorkflowState]string{
	types.StateBacklog:                    "ededed",
	types.StatePlanning:                   "1d76db",
	types.StateAwaitingPlanApproval:       "fbca04",
	types.StatePlanApproved:               "0e8a16",
	types.StateInProgress:                 "5319e7",
	types.StateAwaitingCompletionApproval: "fbca04",
	types.StateClosed:                     "cccccc",
}

var typeLabelColors = map[types.IssueType]string{
	types.TypeEpic:    "3e4b9e",
	types.TypeTask:    "0075ca",
	types.TypeSubTask: "7057ff",
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Prepare a repository for ghoo",
	Long: `Create the assets ghoo relies on: the custom issue types (Epic, Task,
Sub-task) when the repository supports them, and the status:* and type:*
labels. Re-running is safe; existing assets are reported, not recreated.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s, err := newSession()
		if err != nil {
			fail(err)
		}

		report := runInit(rootCtx, s)
		if jsonOutput {
			outputJSON(report)
			if report.Errors > 0 {
				// The envelope already carries per-item detail.
				fail(errors.New(errors.CodeNetworkError, "init finished with %d error(s)", report.Errors))
			}
			return
		}

		for _, item := range report.Items {
			icon := ui.IconPass
			if item.Outcome == "error" {
				icon = ui.IconFail
			} else if item.Outcome == "fallback" {
				icon = ui.IconWarn
			}
			line := fmt.Sprintf("%s %-11s %-28s %s", icon, item.Kind, item.Name, item.Outcome)
			if item.Detail != "" {
				line += " " + ui.RenderMuted("("+item.Detail+")")
			}
			say("%s", line)
		}
		if report.Errors > 0 {
			fail(errors.New(errors.CodeNetworkError, "init finished with %d error(s)", report.Errors))
		}
		say("Repository ready.")
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

// runInit ensures every asset exists, collecting outcomes instead of
// stopping at the first failure.
func runInit(ctx context.Context, s *session) *initReport {
	report := &initReport{}
	add := func(item initItem) {
		if item.Outcome == "error" {
			report.Errors++
		}
		report.Items = append(report.Items, item)
	}

	initIssueTypes(ctx, s, add)
	initLabels(ctx, s, add)
	return report
}

// initIssueTypes ensures the three managed kinds exist as native issue
// types. Repositories without the feature fall back to type labels, which
// initLabels creates regardless.
func initIssueTypes(ctx context.Context, s *session, add func(initItem)) {
	if !s.client.HasFeature(ctx, hybrid.FeatureIssueTypes) {
		for _, kind := range types.AllIssueTypes {
			add(initItem{
				Name:    kind.DisplayName(),
				Kind:    "issue-type",
				Outcome: "fallback",
				Detail:  "native issue types unavailable; " + kind.Label() + " label will be used",
			})
		}
		return
	}

	existing, err := s.client.Graph().ListIssueTypes(ctx, s.owner, s.repo)
	if err != nil {
		for _, kind := range types.AllIssueTypes {
			add(initItem{Name: kind.DisplayName(), Kind: "issue-type", Outcome: "error", Detail: err.Error()})
		}
		return
	}

	ownerID := ""
	for _, kind := range types.AllIssueTypes {
		if _, ok := existing[strings.ToLower(kind.DisplayName())]; ok {
			add(initItem{Name: kind.DisplayName(), Kind: "issue-type", Outcome: "existing"})
			continue
		}
		if ownerID == "" {
			ownerID, err = s.client.Graph().GetOwnerID(ctx, s.owner)
			if err != nil {
				add(initItem{Name: kind.DisplayName(), Kind: "issue-type", Outcome: "error", Detail: err.Error()})
				continue
			}
		}
		err := s.client.Graph().CreateIssueType(ctx, ownerID, kind.DisplayName(),
			fmt.Sprintf("ghoo-managed %s", kind.DisplayName()))
		if err != nil {
			if errors.IsCode(err, errors.CodeFeatureUnavailable) {
				add(initItem{Name: kind.DisplayName(), Kind: "issue-type", Outcome: "fallback",
					Detail: "creation unavailable; " + kind.Label() + " label will be used"})
				continue
			}
			add(initItem{Name: kind.DisplayName(), Kind: "issue-type", Outcome: "error", Detail: err.Error()})
			continue
		}
		add(initItem{Name: kind.DisplayName(), Kind: "issue-type", Outcome: "created"})
	}
}

// initLabels ensures every status:* and type:* label exists.
func initLabels(ctx context.Context, s *session, add func(initItem)) {
	existing := map[string]bool{}
	labels, err := s.client.REST().ListLabels(ctx)
	if err != nil {
		add(initItem{Name: "labels", Kind: "label", Outcome: "error", Detail: err.Error()})
		return
	}
	for _, l := range labels {
		existing[l.Name] = true
	}

	ensure := func(name, color, description string) {
		if existing[name] {
			add(initItem{Name: name, Kind: "label", Outcome: "existing"})
			return
		}
		if _, err := s.client.REST().CreateLabel(ctx, name, color, description); err != nil {
			add(initItem{Name: name, Kind: "label", Outcome: "error", Detail: err.Error()})
			return
		}
		add(initItem{Name: name, Kind: "label", Outcome: "created"})
	}

	for _, st := range types.AllWorkflowStates {
		ensure(st.Label(), statusLabelColors[st], "workflow state: "+string(st))
	}
	for _, kind := range types.AllIssueTypes {
		ensure(kind.Label(), typeLabelColors[kind], "issue kind: "+kind.DisplayName())
	}
}

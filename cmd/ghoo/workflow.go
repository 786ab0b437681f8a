package main

import (
	"github.com/spf13/cobra"

	"github.com/justynbrt/ghoo/internal/ui"
	"github.com/justynbrt/ghoo/internal/workflow"
)

// workflowVerbs maps each transition verb to its one-line description.
var workflowVerbs = []struct {
	name  string
	short string
}{
	{workflow.StartPlan, "Move an issue from backlog into planning"},
	{workflow.SubmitPlan, "Submit a plan for approval (requires the kind's sections)"},
	{workflow.ApprovePlan, "Approve a submitted plan"},
	{workflow.StartWork, "Start work on an approved plan"},
	{workflow.SubmitWork, "Submit finished work for approval"},
	{workflow.ApproveWork, "Approve finished work and close the issue"},
}

func newWorkflowCommand(name, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " <issue#>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			number, err := parseIssueArg(args[0])
			if err != nil {
				fail(err)
			}
			message, _, err := textInput(cmd, "message")
			if err != nil {
				fail(err)
			}

			s, err := newSession()
			if err != nil {
				fail(err)
			}

			engine := workflow.New(s.client, s.cfg)
			result, err := engine.Execute(rootCtx, name, number, message)
			if err != nil {
				fail(err)
			}

			if jsonOutput {
				outputJSON(result)
				return
			}
			say("#%d: %s → %s", number, ui.RenderState(result.From), ui.RenderState(result.To))
			say("%s", ui.RenderMuted(workflow.FormatAuditLine(result)))
		},
	}
	addTextFlags(cmd, "message", "reason recorded in the audit log")
	return cmd
}

func init() {
	for _, v := range workflowVerbs {
		rootCmd.AddCommand(newWorkflowCommand(v.name, v.short))
	}
}

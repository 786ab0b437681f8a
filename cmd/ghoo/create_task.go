package main

import (
	"github.com/spf13/cobra"

	"github.com/justynbrt/ghoo/internal/types"
)

var createTaskCmd = &cobra.Command{
	Use:   "create-task",
	Short: "Create a task under an epic",
	Long: `Create a task issue linked under a parent epic. The parent link is
required: when native sub-issues are unavailable, a body back-reference is
written instead; when the sub-issue edge fails for any other reason, or the
back-reference cannot be written, the created issue is rolled back (closed).`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runCreate(cmd, types.TypeTask, "parent-epic")
	},
}

func init() {
	addCreateFlags(createTaskCmd)
	createTaskCmd.Flags().Int("parent-epic", 0, "issue number of the parent epic (required)")
	_ = createTaskCmd.MarkFlagRequired("parent-epic")
	rootCmd.AddCommand(createTaskCmd)
}

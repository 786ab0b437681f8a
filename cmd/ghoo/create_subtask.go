package main

import (
	"github.com/spf13/cobra"

	"github.com/justynbrt/ghoo/internal/types"
)

var createSubTaskCmd = &cobra.Command{
	Use:     "create-sub-task",
	Aliases: []string{"create-subtask"},
	Short:   "Create a sub-task under a task",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runCreate(cmd, types.TypeSubTask, "parent-task")
	},
}

func init() {
	addCreateFlags(createSubTaskCmd)
	createSubTaskCmd.Flags().Int("parent-task", 0, "issue number of the parent task (required)")
	_ = createSubTaskCmd.MarkFlagRequired("parent-task")
	rootCmd.AddCommand(createSubTaskCmd)
}

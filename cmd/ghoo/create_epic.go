package main

import (
	"github.com/spf13/cobra"

	"github.com/justynbrt/ghoo/internal/types"
)

var createEpicCmd = &cobra.Command{
	Use:   "create-epic",
	Short: "Create an epic",
	Long: `Create an epic issue. Epics sit at the top of the hierarchy and
collect tasks. When no body is given, a starter body with the required
sections is generated.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runCreate(cmd, types.TypeEpic, "")
	},
}

func init() {
	addCreateFlags(createEpicCmd)
	rootCmd.AddCommand(createEpicCmd)
}

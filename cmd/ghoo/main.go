// Command ghoo is a prescriptive CLI for a three-level issue hierarchy
// (Epic → Task → Sub-task) on GitHub, enforcing a workflow state machine
// and a structural invariant on issue bodies.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/justynbrt/ghoo/internal/errors"
)

var (
	// jsonOutput switches all output, including errors, to the JSON
	// envelope.
	jsonOutput bool

	// repoFlag overrides the repository from ghoo.yaml.
	repoFlag string

	// rootCtx is the cancelable base context of the invocation. It has no
	// deadline; each HTTP request is bounded by the HTTP client's timeout.
	rootCtx context.Context
)

var rootCmd = &cobra.Command{
	Use:   "ghoo",
	Short: "Manage a typed Epic → Task → Sub-task hierarchy on GitHub",
	Long: `ghoo manages a three-level issue hierarchy on GitHub, enforcing a
workflow state machine, required body sections, and typed parent links.

Configuration lives in ghoo.yaml (project_url, status_method,
required_sections). The GitHub token is read from GITHUB_TOKEN.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit structured JSON output")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", "", "target repository as owner/repo (overrides ghoo.yaml)")
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rootCtx = ctx

	if err := rootCmd.Execute(); err != nil {
		// Cobra-level errors (unknown flags, bad arguments) are user errors.
		if jsonOutput {
			outputJSONError(errors.New(errors.CodeUsage, "%v", err))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(errors.ExitUser)
	}
}

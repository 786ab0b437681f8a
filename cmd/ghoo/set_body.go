package main

import (
	"github.com/spf13/cobra"

	"github.com/justynbrt/ghoo/internal/body"
	"github.com/justynbrt/ghoo/internal/errors"
)

var setBodyCmd = &cobra.Command{
	Use:   "set-body <issue#>",
	Short: "Replace an issue's entire body",
	Long: `Replace an issue body atomically. The new body is validated against
the service's size ceiling before anything is written.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		number, err := parseIssueArg(args[0])
		if err != nil {
			fail(err)
		}
		newBody, hasBody, err := textInput(cmd, "body")
		if err != nil {
			fail(err)
		}
		if !hasBody {
			fail(errors.New(errors.CodeUsage, "a body is required: use --body, --body-file, or stdin"))
		}

		s, err := newSession()
		if err != nil {
			fail(err)
		}
		ctx := rootCtx

		// Fetch first so a bad issue number fails before any write, then
		// validate the replacement's size.
		issue, err := s.client.GetIssue(ctx, number)
		if err != nil {
			fail(err)
		}
		parsed := body.Parse(issue.Body)
		parsed.Replace(newBody)
		rendered, err := parsed.Render()
		if err != nil {
			fail(err)
		}
		if err := s.client.UpdateBody(ctx, number, rendered); err != nil {
			fail(err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{"number": number, "bytes": len(rendered)})
			return
		}
		say("Updated body of #%d", number)
	},
}

func init() {
	addTextFlags(setBodyCmd, "body", "replacement body")
	rootCmd.AddCommand(setBodyCmd)
}

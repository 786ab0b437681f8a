package main

import (
	"github.com/spf13/cobra"

	"github.com/justynbrt/ghoo/internal/body"
	"github.com/justynbrt/ghoo/internal/errors"
	"github.com/justynbrt/ghoo/internal/ui"
)

var createTodoCmd = &cobra.Command{
	Use:   "create-todo <issue#> <section>",
	Short: "Add a todo to a section",
	Long: `Append an unchecked todo at the end of the named section. Section
matching is case-insensitive. With --create-section, a missing section is
created on the fly.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		number, err := parseIssueArg(args[0])
		if err != nil {
			fail(err)
		}
		section := args[1]
		text, hasText, err := textInput(cmd, "text")
		if err != nil {
			fail(err)
		}
		if !hasText {
			fail(errors.New(errors.CodeUsage, "todo text is required: use --text, --text-file, or stdin"))
		}
		createSection, _ := cmd.Flags().GetBool("create-section")

		s, err := newSession()
		if err != nil {
			fail(err)
		}
		ctx := rootCtx

		issue, err := s.client.GetIssue(ctx, number)
		if err != nil {
			fail(err)
		}
		parsed := body.Parse(issue.Body)
		if createSection {
			parsed.EnsureSection(section)
		}
		if err := parsed.AddTodo(section, text); err != nil {
			fail(err)
		}
		rendered, err := parsed.Render()
		if err != nil {
			fail(err)
		}
		if err := s.client.UpdateBody(ctx, number, rendered); err != nil {
			fail(err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"number":  number,
				"section": section,
				"text":    text,
			})
			return
		}
		say("Added todo to %q on #%d: %s %s", section, number, ui.TodoMarker(false), text)
	},
}

var checkTodoCmd = &cobra.Command{
	Use:   "check-todo <issue#> <section>",
	Short: "Toggle a todo's checkbox",
	Long: `Flip the checkbox of the single todo in the named section whose text
contains --match. A match that hits several todos fails and lists the
candidates.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		number, err := parseIssueArg(args[0])
		if err != nil {
			fail(err)
		}
		section := args[1]
		match, _ := cmd.Flags().GetString("match")
		if match == "" {
			fail(errors.New(errors.CodeUsage, "--match is required"))
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
		parsed := body.Parse(issue.Body)
		todo, err := parsed.ToggleTodo(section, match)
		if err != nil {
			fail(err)
		}
		rendered, err := parsed.Render()
		if err != nil {
			fail(err)
		}
		if err := s.client.UpdateBody(ctx, number, rendered); err != nil {
			fail(err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"number":  number,
				"section": section,
				"text":    todo.Text,
				"checked": todo.Checked,
			})
			return
		}
		say("Toggled on #%d: %s %s", number, ui.TodoMarker(todo.Checked), todo.Text)
	},
}

func init() {
	addTextFlags(createTodoCmd, "text", "todo text")
	createTodoCmd.Flags().Bool("create-section", false, "create the section if it does not exist")
	rootCmd.AddCommand(createTodoCmd)

	checkTodoCmd.Flags().String("match", "", "substring identifying the todo (required)")
	_ = checkTodoCmd.MarkFlagRequired("match")
	rootCmd.AddCommand(checkTodoCmd)
}

package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/justynbrt/ghoo/internal/config"
	"github.com/justynbrt/ghoo/internal/errors"
	"github.com/justynbrt/ghoo/internal/github"
	"github.com/justynbrt/ghoo/internal/hybrid"
	"github.com/justynbrt/ghoo/internal/types"
)

var repoSlugPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*/[A-Za-z0-9._-]+$`)

// session bundles everything one command invocation needs: the validated
// config, the hybrid client, and the resolved repository.
type session struct {
	cfg    *config.Config
	client *hybrid.Client
	owner  string
	repo   string
}

// newSession resolves config, credential, and repository, and builds the
// hybrid client. The --repo flag wins over ghoo.yaml.
func newSession() (*session, error) {
	if repoFlag != "" && !repoSlugPattern.MatchString(repoFlag) {
		return nil, errors.New(errors.CodeRepositoryFormatInvalid,
			"repository %q is not in owner/repo format", repoFlag)
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		// A missing manifest is tolerable when --repo names the target;
		// defaults then apply for everything else.
		if repoFlag == "" || !errors.IsCode(err, errors.CodeConfigMissing) {
			return nil, err
		}
		cfg, err = config.Parse("<defaults>", []byte("project_url: https://github.com/"+repoFlag+"\n"))
		if err != nil {
			return nil, err
		}
	}

	slug := repoFlag
	if slug == "" {
		slug, err = cfg.RepoSlug()
		if err != nil {
			return nil, err
		}
	}
	if !repoSlugPattern.MatchString(slug) {
		return nil, errors.New(errors.CodeRepositoryFormatInvalid,
			"repository %q is not in owner/repo format", slug)
	}
	parts := strings.SplitN(slug, "/", 2)
	owner, repo := parts[0], parts[1]

	token, err := config.Token()
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: config.Timeout()}
	rest := github.NewClient(token, owner, repo).WithHTTPClient(httpClient)
	graph := github.NewGraphQLClient(token).WithHTTPClient(httpClient)

	return &session{
		cfg:    cfg,
		client: hybrid.New(rest, graph, cfg, owner, repo).WithWarnFunc(warn),
		owner:  owner,
		repo:   repo,
	}, nil
}

// parseIssueArg converts the positional issue number.
func parseIssueArg(arg string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(arg, "#"))
	if err != nil || n <= 0 {
		return 0, errors.New(errors.CodeUsage, "issue number %q is not a positive integer", arg)
	}
	return n, nil
}

// textInput reads free text from exactly one of --<name>, --<name>-file, or
// stdin ("-"). All three absent yields ("", false).
func textInput(cmd *cobra.Command, name string) (string, bool, error) {
	inline, _ := cmd.Flags().GetString(name)
	file, _ := cmd.Flags().GetString(name + "-file")
	useStdin := file == "-" || inline == "-"

	set := 0
	if inline != "" && inline != "-" {
		set++
	}
	if file != "" && file != "-" {
		set++
	}
	if useStdin {
		set++
	}
	if set > 1 {
		return "", false, errors.New(errors.CodeUsage,
			"--%s, --%s-file, and stdin are mutually exclusive", name, name)
	}

	switch {
	case useStdin:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", false, errors.Wrap(errors.CodeUsage, err, "reading %s from stdin: %v", name, err)
		}
		return string(data), true, nil
	case file != "":
		data, err := os.ReadFile(file) // #nosec G304 - user-chosen input file
		if err != nil {
			return "", false, errors.Wrap(errors.CodeUsage, err, "reading %s: %v", file, err)
		}
		return string(data), true, nil
	case inline != "":
		return inline, true, nil
	}
	return "", false, nil
}

// addTextFlags registers the inline/file flag pair for a free-text option.
func addTextFlags(cmd *cobra.Command, name, usage string) {
	cmd.Flags().String(name, "", usage+" (use - for stdin)")
	cmd.Flags().String(name+"-file", "", usage+" from a file (use - for stdin)")
}

// splitCommaList parses a comma-separated flag value.
func splitCommaList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// creationLabels computes the label set for a new issue: user labels plus
// the backlog status every managed issue starts in.
func creationLabels(extra []string) []string {
	labels := append([]string{}, extra...)
	for _, l := range labels {
		if l == types.StateBacklog.Label() {
			return labels
		}
	}
	return append(labels, types.StateBacklog.Label())
}

// resolveMilestone maps a milestone title to its number, erroring with the
// available titles when absent.
func resolveMilestone(ctx context.Context, s *session, title string) (int, error) {
	if title == "" {
		return 0, nil
	}
	milestones, err := s.client.REST().ListMilestones(ctx)
	if err != nil {
		return 0, err
	}
	var available []string
	for _, m := range milestones {
		if strings.EqualFold(m.Title, title) {
			return m.Number, nil
		}
		available = append(available, m.Title)
	}
	return 0, errors.New(errors.CodeUsage, "milestone %q not found", title).
		WithOptions(available)
}

// requireParentKind verifies the referenced parent issue has the expected
// kind before a child is linked beneath it.
func requireParentKind(ctx context.Context, s *session, parent int, expected types.IssueType) error {
	actual, err := s.client.ResolveKind(ctx, parent)
	if err != nil {
		return err
	}
	if actual != expected {
		return errors.New(errors.CodeParentNotOfExpectedKind,
			"parent #%d is a %s, expected a %s", parent, actual.DisplayName(), expected.DisplayName())
	}
	return nil
}

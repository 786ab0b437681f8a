package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justynbrt/ghoo/internal/errors"
	"github.com/justynbrt/ghoo/internal/types"
)

func parseOK(t *testing.T, data string) *Config {
	t.Helper()
	cfg, err := Parse("ghoo.yaml", []byte(data))
	require.NoError(t, err)
	return cfg
}

func TestParseRepositoryURL(t *testing.T) {
	cfg := parseOK(t, "project_url: https://github.com/acme/svc\n")
	assert.Equal(t, "acme", cfg.Owner)
	assert.Equal(t, "svc", cfg.Repo)
	assert.Equal(t, StatusLabels, cfg.StatusMethod)

	slug, err := cfg.RepoSlug()
	require.NoError(t, err)
	assert.Equal(t, "acme/svc", slug)
}

func TestParseOrgProjectURL(t *testing.T) {
	cfg := parseOK(t, "project_url: https://github.com/orgs/acme/projects/7\n")
	assert.Equal(t, "acme", cfg.ProjectOwner)
	assert.Equal(t, 7, cfg.ProjectNumber)
	assert.Equal(t, StatusField, cfg.StatusMethod)

	_, err := cfg.RepoSlug()
	require.Error(t, err)
	assert.Equal(t, errors.CodeRepositoryFormatInvalid, errors.CodeOf(err))
}

func TestParseUserProjectURL(t *testing.T) {
	cfg := parseOK(t, "project_url: https://github.com/users/bob/projects/3\n")
	assert.Equal(t, "bob", cfg.ProjectOwner)
	assert.Equal(t, 3, cfg.ProjectNumber)
}

func TestExplicitStatusMethodWins(t *testing.T) {
	cfg := parseOK(t, "project_url: https://github.com/acme/svc\nstatus_method: status_field\n")
	assert.Equal(t, StatusField, cfg.StatusMethod)
}

func TestMissingProjectURL(t *testing.T) {
	_, err := Parse("ghoo.yaml", []byte("status_method: labels\n"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigMissingField, errors.CodeOf(err))
}

func TestInvalidURLShapes(t *testing.T) {
	for _, u := range []string{
		"http://github.com/acme/svc",          // not https
		"https://github.com/acme",             // missing repo
		"https://github.com/orgs/acme/boards/1", // not a projects path
		"not a url at all",
	} {
		_, err := Parse("ghoo.yaml", []byte("project_url: \""+u+"\"\n"))
		require.Error(t, err, "url %q", u)
		assert.Equal(t, errors.CodeConfigInvalid, errors.CodeOf(err), "url %q", u)
	}
}

func TestInvalidStatusMethod(t *testing.T) {
	_, err := Parse("ghoo.yaml", []byte("project_url: https://github.com/a/b\nstatus_method: board\n"))
	require.Error(t, err)
	e := errors.AsError(err)
	assert.Equal(t, errors.CodeConfigInvalid, e.Code)
	assert.Equal(t, []string{StatusLabels, StatusField}, e.ValidOptions)
}

func TestInvalidYAMLReportsIssue(t *testing.T) {
	_, err := Parse("ghoo.yaml", []byte("project_url: [unterminated\n"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "ghoo.yaml")
}

func TestDefaultRequiredSections(t *testing.T) {
	cfg := parseOK(t, "project_url: https://github.com/a/b\n")
	assert.Equal(t, []string{"Summary", "Acceptance Criteria", "Milestone Plan"}, cfg.SectionsFor(types.TypeEpic))
	assert.Equal(t, []string{"Summary", "Acceptance Criteria", "Implementation Plan"}, cfg.SectionsFor(types.TypeTask))
	assert.Equal(t, []string{"Summary", "Acceptance Criteria"}, cfg.SectionsFor(types.TypeSubTask))
}

func TestRequiredSectionsOverrideAndNormalize(t *testing.T) {
	cfg := parseOK(t, `project_url: https://github.com/a/b
required_sections:
  subtask: [Steps]
`)
	// "subtask" normalizes to the canonical spelling; other kinds keep defaults.
	assert.Equal(t, []string{"Steps"}, cfg.SectionsFor(types.TypeSubTask))
	assert.Equal(t, []string{"Summary", "Acceptance Criteria", "Milestone Plan"}, cfg.SectionsFor(types.TypeEpic))
}

func TestRequiredSectionsBadKind(t *testing.T) {
	_, err := Parse("ghoo.yaml", []byte(`project_url: https://github.com/a/b
required_sections:
  story: [Summary]
`))
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.CodeOf(err))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.TempDir() + "/ghoo.yaml")
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigMissing, errors.CodeOf(err))
}

func TestTokenFromEnv(t *testing.T) {
	t.Setenv(TokenEnvVar, "")
	_, err := Token()
	require.Error(t, err)
	assert.Equal(t, errors.CodeMissingCredential, errors.CodeOf(err))

	t.Setenv(TokenEnvVar, "ghp_abc")
	tok, err := Token()
	require.NoError(t, err)
	assert.Equal(t, "ghp_abc", tok)
}

func TestTimeoutOverride(t *testing.T) {
	t.Setenv("GHOO_TIMEOUT", "5")
	assert.Equal(t, "5s", Timeout().String())

	t.Setenv("GHOO_TIMEOUT", "0")
	assert.Equal(t, "30s", Timeout().String())
}

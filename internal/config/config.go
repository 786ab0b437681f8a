// Package config loads and validates the ghoo.yaml project manifest.
//
// The manifest names the target repository or project board, the status
// backend, and the per-kind required sections. Everything else (the token,
// timeouts) comes from the environment.
package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/justynbrt/ghoo/internal/errors"
	"github.com/justynbrt/ghoo/internal/types"
)

// DefaultFileName is the manifest filename looked up in the working
// directory. Override the full path with GHOO_CONFIG.
const DefaultFileName = "ghoo.yaml"

// TokenEnvVar is the only place the credential is read from. It is never
// written to disk.
const TokenEnvVar = "GITHUB_TOKEN"

// Status backends.
const (
	StatusLabels = "labels"
	StatusField  = "status_field"
)

// Config is the read-only project manifest.
type Config struct {
	ProjectURL       string              `yaml:"project_url"`
	StatusMethod     string              `yaml:"status_method"`
	RequiredSections map[string][]string `yaml:"required_sections"`

	// Derived from ProjectURL during validation.
	Owner         string `yaml:"-"`
	Repo          string `yaml:"-"` // empty for project-board URLs
	ProjectNumber int    `yaml:"-"` // 0 for repository URLs
	ProjectOwner  string `yaml:"-"` // org or user owning the board
}

// rawConfig mirrors the file schema exactly, so unknown keys can be
// rejected with a line-accurate error.
type rawConfig struct {
	ProjectURL       string              `yaml:"project_url"`
	StatusMethod     string              `yaml:"status_method"`
	RequiredSections map[string][]string `yaml:"required_sections"`
}

// DefaultRequiredSections returns the built-in section requirements per
// issue kind.
func DefaultRequiredSections() map[string][]string {
	return map[string][]string{
		string(types.TypeEpic):    {"Summary", "Acceptance Criteria", "Milestone Plan"},
		string(types.TypeTask):    {"Summary", "Acceptance Criteria", "Implementation Plan"},
		string(types.TypeSubTask): {"Summary", "Acceptance Criteria"},
	}
}

var (
	repoPathPattern    = regexp.MustCompile(`^/([^/]+)/([^/]+)/?$`)
	projectPathPattern = regexp.MustCompile(`^/(orgs|users)/([^/]+)/projects/(\d+)/?$`)
)

// Path returns the manifest path, honoring the GHOO_CONFIG override.
func Path() string {
	v := viper.New()
	v.SetEnvPrefix("ghoo")
	v.AutomaticEnv()
	v.SetDefault("config", DefaultFileName)
	return v.GetString("config")
}

// Timeout returns the per-request HTTP timeout, honoring GHOO_TIMEOUT
// (seconds).
func Timeout() time.Duration {
	v := viper.New()
	v.SetEnvPrefix("ghoo")
	v.AutomaticEnv()
	v.SetDefault("timeout", 30)
	secs := v.GetInt("timeout")
	if secs <= 0 {
		secs = 30
	}
	return time.Duration(secs) * time.Second
}

// Token reads the bearer credential from the environment.
func Token() (string, error) {
	tok := strings.TrimSpace(os.Getenv(TokenEnvVar))
	if tok == "" {
		return "", errors.MissingCredential(TokenEnvVar)
	}
	return tok, nil
}

// Load reads and validates the manifest at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - user-chosen config path
	if os.IsNotExist(err) {
		return nil, errors.New(errors.CodeConfigMissing, "configuration file not found: %s", path).
			WithHint("create a " + DefaultFileName + " with at minimum: project_url: https://github.com/owner/repo")
	}
	if err != nil {
		return nil, errors.Wrap(errors.CodeConfigInvalid, err, "reading %s: %v", path, err)
	}
	return Parse(path, data)
}

// Parse validates manifest bytes. Split from Load for tests.
func Parse(path string, data []byte) (*Config, error) {
	var raw rawConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && err != io.EOF {
		return nil, errors.Wrap(errors.CodeConfigInvalid, err, "%s: %s", path, yamlIssue(err))
	}

	if strings.TrimSpace(raw.ProjectURL) == "" {
		return nil, errors.New(errors.CodeConfigMissingField, "%s: required field %q is missing", path, "project_url")
	}

	cfg := &Config{
		ProjectURL:       raw.ProjectURL,
		StatusMethod:     raw.StatusMethod,
		RequiredSections: raw.RequiredSections,
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// yamlIssue flattens a yaml.v3 error into "line N: problem" form. TypeError
// carries one message per offending node, each already prefixed with the
// line number.
func yamlIssue(err error) string {
	if typeErr, ok := err.(*yaml.TypeError); ok && len(typeErr.Errors) > 0 {
		return strings.Join(typeErr.Errors, "; ")
	}
	return err.Error()
}

func (c *Config) validate(path string) error {
	u, err := url.Parse(strings.TrimSpace(c.ProjectURL))
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return errors.New(errors.CodeConfigInvalid,
			"%s: project_url %q is not an HTTPS URL", path, c.ProjectURL)
	}

	switch {
	case projectPathPattern.MatchString(u.Path):
		m := projectPathPattern.FindStringSubmatch(u.Path)
		c.ProjectOwner = m[2]
		c.ProjectNumber, _ = strconv.Atoi(m[3])
	case repoPathPattern.MatchString(u.Path):
		m := repoPathPattern.FindStringSubmatch(u.Path)
		c.Owner, c.Repo = m[1], m[2]
	default:
		return errors.New(errors.CodeConfigInvalid,
			"%s: project_url path %q is neither /<owner>/<repo> nor /orgs/<org>/projects/<n> nor /users/<user>/projects/<n>",
			path, u.Path)
	}

	switch c.StatusMethod {
	case "":
		// Auto-choose from the URL shape.
		if c.ProjectNumber > 0 {
			c.StatusMethod = StatusField
		} else {
			c.StatusMethod = StatusLabels
		}
	case StatusLabels, StatusField:
	default:
		return errors.New(errors.CodeConfigInvalid,
			"%s: status_method %q is invalid", path, c.StatusMethod).
			WithOptions([]string{StatusLabels, StatusField})
	}

	if c.RequiredSections == nil {
		c.RequiredSections = DefaultRequiredSections()
	} else {
		normalized := make(map[string][]string, len(c.RequiredSections))
		for k, v := range c.RequiredSections {
			kind, err := types.ParseIssueType(k)
			if err != nil {
				return errors.New(errors.CodeConfigInvalid,
					"%s: required_sections key %q is not an issue type", path, k).
					WithOptions([]string{"epic", "task", "sub-task"})
			}
			normalized[string(kind)] = v
		}
		// Kinds the file does not mention keep their defaults.
		for k, v := range DefaultRequiredSections() {
			if _, ok := normalized[k]; !ok {
				normalized[k] = v
			}
		}
		c.RequiredSections = normalized
	}
	return nil
}

// SectionsFor returns the required sections for a kind. Unknown kinds
// require nothing.
func (c *Config) SectionsFor(kind types.IssueType) []string {
	return c.RequiredSections[string(kind)]
}

// RepoSlug returns "owner/repo" for repository-rooted configs, or an error
// for board-rooted ones that never named a repository.
func (c *Config) RepoSlug() (string, error) {
	if c.Owner == "" || c.Repo == "" {
		return "", errors.New(errors.CodeRepositoryFormatInvalid,
			"project_url points at a project board; pass --repo <owner/repo> to name the repository")
	}
	return fmt.Sprintf("%s/%s", c.Owner, c.Repo), nil
}

// Package errors defines the ghoo error taxonomy: every failure surfaced to
// a user carries a machine-readable code, a short title, and optionally a
// list of valid options or blocking items. The command layer maps codes to
// process exit codes and renders either plain text or the JSON envelope.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a structured error kind.
type Code string

const (
	// Authentication failures (exit 3).
	CodeMissingCredential Code = "missing_credential"
	CodeInvalidCredential Code = "invalid_credential"

	// Configuration failures (exit 1).
	CodeConfigMissing      Code = "config_missing"
	CodeConfigInvalid      Code = "config_invalid"
	CodeConfigMissingField Code = "config_missing_field"

	// Remote access failures (exit 2).
	CodeIssueNotFound Code = "issue_not_found"
	CodeForbidden     Code = "forbidden"
	CodeTimeout       Code = "timeout"
	CodeRateLimited   Code = "rate_limited"
	CodeNetworkError  Code = "network_error"

	// Feature detection (exit 2 when surfaced).
	CodeFeatureUnavailable Code = "feature_unavailable"

	// Workflow violations (exit 4).
	CodeIllegalTransition       Code = "illegal_transition"
	CodeRequiredSectionMissing  Code = "required_section_missing"
	CodeCompletionBlocked       Code = "completion_blocked"
	CodeParentNotOfExpectedKind Code = "parent_not_of_expected_kind"

	// Body-edit violations (exit 1).
	CodeDuplicateTodo   Code = "duplicate_todo"
	CodeSectionNotFound Code = "section_not_found"
	CodeAmbiguousMatch  Code = "ambiguous_match"
	CodeBodyTooLarge    Code = "body_too_large"

	// User input (exit 1).
	CodeRepositoryFormatInvalid Code = "repository_format_invalid"
	CodeUsage                   Code = "usage"

	// Hybrid-client rollback surface (exit 2).
	CodeRelationshipRequired Code = "relationship_required"

	// Programmer bugs (exit 5).
	CodeInternal Code = "internal"
)

// Exit codes for the command surface.
const (
	ExitOK       = 0
	ExitUser     = 1
	ExitRemote   = 2
	ExitAuth     = 3
	ExitWorkflow = 4
	ExitInternal = 5
)

// Error is a structured error with a code, a human message, and an optional
// list of valid options (section names, candidate todos, blocking items).
type Error struct {
	Code         Code
	Message      string
	Hint         string   // remediation hint, printed after the message
	ValidOptions []string // rendered as a bullet list when present
	Err          error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a structured error.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying error.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithHint returns the error with a remediation hint attached.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// WithOptions returns the error with a valid-options list attached.
func (e *Error) WithOptions(opts []string) *Error {
	e.ValidOptions = opts
	return e
}

// CodeOf walks the error chain and returns the first structured code found.
// Unclassified errors are internal errors by definition.
func CodeOf(err error) Code {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.Code
	}
	return CodeInternal
}

// IsCode reports whether the error chain carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// AsError extracts the structured error from a chain, or wraps an
// unclassified error as internal.
func AsError(err error) *Error {
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}
	return &Error{Code: CodeInternal, Message: err.Error(), Err: err}
}

// ExitCode maps an error to the process exit code contract.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch CodeOf(err) {
	case CodeMissingCredential, CodeInvalidCredential:
		return ExitAuth
	case CodeConfigMissing, CodeConfigInvalid, CodeConfigMissingField,
		CodeRepositoryFormatInvalid, CodeUsage,
		CodeDuplicateTodo, CodeSectionNotFound, CodeAmbiguousMatch, CodeBodyTooLarge:
		return ExitUser
	case CodeIssueNotFound, CodeForbidden, CodeTimeout, CodeRateLimited,
		CodeNetworkError, CodeFeatureUnavailable, CodeRelationshipRequired:
		return ExitRemote
	case CodeIllegalTransition, CodeRequiredSectionMissing,
		CodeCompletionBlocked, CodeParentNotOfExpectedKind:
		return ExitWorkflow
	}
	return ExitInternal
}

// Feature names reported by FeatureUnavailable.
const (
	FeatureSubIssues  = "sub_issues"
	FeatureIssueTypes = "issue_types"
	FeatureProjectsV2 = "projects_v2"
)

// FeatureUnavailable builds the feature-detection error for the given
// feature tag.
func FeatureUnavailable(feature string) *Error {
	return &Error{
		Code:    CodeFeatureUnavailable,
		Message: fmt.Sprintf("feature %q is not available on this repository", feature),
		Hint:    "the operation will be retried with a fallback where one exists",
	}
}

// FeatureOf returns the feature tag from a FeatureUnavailable error, or "".
func FeatureOf(err error) string {
	var structured *Error
	if !errors.As(err, &structured) || structured.Code != CodeFeatureUnavailable {
		return ""
	}
	// Message form: feature "x" is not available...
	start := strings.Index(structured.Message, `"`)
	if start < 0 {
		return ""
	}
	end := strings.Index(structured.Message[start+1:], `"`)
	if end < 0 {
		return ""
	}
	return structured.Message[start+1 : start+1+end]
}

// MissingCredential is the canonical missing-token error.
func MissingCredential(envVar string) *Error {
	return New(CodeMissingCredential, "GitHub token not found in %s", envVar).
		WithHint(fmt.Sprintf("export %s with a personal access token that has Issues read/write permission", envVar))
}

// IllegalTransition reports a state-machine violation.
func IllegalTransition(current, attempted string) *Error {
	return New(CodeIllegalTransition, "cannot %s from state %q", attempted, current)
}

// RequiredSectionMissing reports absent required sections.
func RequiredSectionMissing(names []string) *Error {
	return New(CodeRequiredSectionMissing, "required sections missing: %s", strings.Join(names, ", ")).
		WithOptions(names)
}

// CompletionBlocked reports why approve-work cannot proceed. Each blocking
// item is pre-rendered (`open child #42`,
// `unchecked todo "A" in section "Acceptance Criteria"`).
func CompletionBlocked(items []string) *Error {
	return New(CodeCompletionBlocked, "completion blocked by %d open item(s)", len(items)).
		WithOptions(items)
}

// RelationshipRequired reports the failed step of a rolled-back composite
// creation.
func RelationshipRequired(step string) *Error {
	return New(CodeRelationshipRequired, "required relationship could not be established (failed step: %s); the created issue was rolled back", step)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/justynbrt/ghoo/internal/errors"
)

// jsonEnvelope is the structured output contract: every command emits
// either {ok, data} or {ok, error} and nothing else when --json is set.
type jsonEnvelope struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error *jsonError  `json:"error,omitempty"`
}

type jsonError struct {
	Code         string   `json:"code"`
	Message      string   `json:"message"`
	Hint         string   `json:"hint,omitempty"`
	ValidOptions []string `json:"valid_options,omitempty"`
}

// outputJSON writes a success envelope to stdout.
func outputJSON(data interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(jsonEnvelope{OK: true, Data: data}); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(errors.ExitInternal)
	}
}

// outputJSONError writes a failure envelope to stderr.
func outputJSONError(err error) {
	structured := errors.AsError(err)
	enc := json.NewEncoder(os.Stderr)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jsonEnvelope{OK: false, Error: &jsonError{
		Code:         string(structured.Code),
		Message:      structured.Message,
		Hint:         structured.Hint,
		ValidOptions: structured.ValidOptions,
	}})
}

// fail renders an error in the selected format and exits with the mapped
// code. Commands call this instead of returning errors to cobra so the
// exit-code contract stays in one place.
func fail(err error) {
	if jsonOutput {
		outputJSONError(err)
		os.Exit(errors.ExitCode(err))
	}
	structured := errors.AsError(err)
	fmt.Fprintf(os.Stderr, "Error: %s\n", structured.Message)
	if len(structured.ValidOptions) > 0 {
		for _, opt := range structured.ValidOptions {
			fmt.Fprintf(os.Stderr, "  - %s\n", opt)
		}
	}
	if structured.Hint != "" {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", structured.Hint)
	}
	os.Exit(errors.ExitCode(err))
}

// warn reports a non-fatal degradation.
func warn(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Warning: "+format+"\n", args...)
}

// say prints a plain line unless JSON mode owns the output.
func say(format string, args ...interface{}) {
	if jsonOutput {
		return
	}
	fmt.Printf(strings.TrimRight(format, "\n")+"\n", args...)
}

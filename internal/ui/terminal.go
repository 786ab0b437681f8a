package ui

import (
	"os"

	"github.com/muesli/termenv"
)

// ShouldUseColor reports whether styled output is appropriate: stdout is a
// terminal, NO_COLOR/CLICOLOR are respected, CLICOLOR_FORCE overrides.
func ShouldUseColor() bool {
	if os.Getenv("CLICOLOR_FORCE") != "" && os.Getenv("CLICOLOR_FORCE") != "0" {
		return true
	}
	if termenv.EnvNoColor() {
		return false
	}
	return termenv.NewOutput(os.Stdout).ColorProfile() != termenv.Ascii
}

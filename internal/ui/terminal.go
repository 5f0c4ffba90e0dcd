package ui

import (
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor returns true when ANSI colors should be used on stdout.
// It respects NO_COLOR, CLICOLOR_FORCE, CLICOLOR, and TTY detection.
func ShouldUseColor() bool {
	if on, decided := colorFromEnv(os.Getenv); decided {
		return on
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// colorFromEnv applies the color environment conventions in priority order.
// decided is false when none of them is set and the TTY check should win.
func colorFromEnv(getenv func(string) string) (on, decided bool) {
	// https://no-color.org: any non-empty value disables color.
	if getenv("NO_COLOR") != "" {
		return false, true
	}
	if strings.TrimSpace(getenv("CLICOLOR_FORCE")) == "1" {
		return true, true
	}
	if strings.TrimSpace(getenv("CLICOLOR")) == "0" {
		return false, true
	}
	return false, false
}

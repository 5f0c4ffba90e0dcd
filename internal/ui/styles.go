package ui

import (
	"fmt"

	"github.com/alfredjeanlab/o3gate/internal/model"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorOK     = 114 // green
	colorWarn   = 214 // orange
	colorFail   = 203 // red
)

var noColor bool

func render(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return render(colorCmd, s) }

// RenderOK returns s in green.
func RenderOK(s string) string { return render(colorOK, s) }

// RenderWarn returns s in orange.
func RenderWarn(s string) string { return render(colorWarn, s) }

// RenderFail returns s in red.
func RenderFail(s string) string { return render(colorFail, s) }

// RenderPhase colors a cycle phase: idle is muted, flushing is a warning
// (ozone in the chamber) and door movement is accented.
func RenderPhase(p model.Phase) string {
	switch p {
	case model.PhaseIdle, "":
		return RenderMuted(string(model.PhaseIdle))
	case model.PhaseFlushing:
		return RenderWarn(p.String())
	}
	return RenderAccent(p.String())
}

// RenderOutcome colors a cycle outcome.
func RenderOutcome(o model.Outcome) string {
	switch o {
	case model.OutcomeCompleted:
		return RenderOK(string(o))
	case model.OutcomeEntranceTimeout, model.OutcomeAborted:
		return RenderWarn(string(o))
	}
	return RenderFail(string(o))
}

// RenderBool renders a yes/no flag, green for yes when good is true and red
// otherwise.
func RenderBool(v, good bool) string {
	if !v {
		return RenderMuted("no")
	}
	if good {
		return RenderOK("yes")
	}
	return RenderFail("yes")
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

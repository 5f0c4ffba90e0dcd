package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/alfredjeanlab/o3gate/internal/ui"
	"github.com/spf13/cobra"
)

var (
	// "  --facility int   ..." or "  -j, --json   ..."
	reFlagLine = regexp.MustCompile(`^(\s+(?:-\w, )?--[\w-]+)( (?:string|int|duration|strings))?(\s.*)$`)
	// "  trigger     Send a trigger ..."
	reCmdLine  = regexp.MustCompile(`^(  )([\w-]+)(\s{2,}.*)$`)
	reDefaults = regexp.MustCompile(`\(default [^)]*\)`)
)

// colorizedHelpFunc prints the long description and usage, styled when
// stdout takes color.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		desc := strings.TrimSpace(cmd.Long)
		if desc == "" {
			desc = cmd.Short
		}
		if desc != "" {
			fmt.Fprintln(out, desc)
			fmt.Fprintln(out)
		}

		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		fmt.Fprint(out, colorizeHelpOutput(buf.String()))
	}
}

// colorizeHelpOutput styles cobra's usage text line by line. It returns s
// unchanged when color is off.
func colorizeHelpOutput(s string) string {
	if !ui.ShouldUseColor() {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = colorizeHelpLine(line)
	}
	return strings.Join(lines, "\n")
}

func colorizeHelpLine(line string) string {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return line
	case line[0] != ' ' && strings.HasSuffix(trimmed, ":"):
		return ui.RenderAccent(trimmed)
	}
	if m := reFlagLine.FindStringSubmatch(line); m != nil {
		typ := m[2]
		if typ != "" {
			typ = " " + ui.RenderMuted(strings.TrimSpace(typ))
		}
		return m[1] + typ + reDefaults.ReplaceAllStringFunc(m[3], ui.RenderMuted)
	}
	if m := reCmdLine.FindStringSubmatch(line); m != nil {
		return m[1] + ui.RenderCommand(m[2]) + m[3]
	}
	return line
}

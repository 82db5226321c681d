package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/fastfare/fleetlive/internal/ui"
	"github.com/spf13/cobra"
)

// helpRule styles one kind of fragment in cobra's plain-text help.
type helpRule struct {
	re    *regexp.Regexp
	style func(parts []string) string
}

var helpRules = []helpRule{
	// Section headers: unindented line ending with ":" (e.g. "Fleet:", "Flags:").
	{
		re:    regexp.MustCompile(`(?m)^([A-Z][^\n]*:)\s*$`),
		style: func(p []string) string { return ui.RenderAccent(strings.TrimSpace(p[0])) },
	},
	// Command names: two-space indent, a word, then two-or-more spaces.
	{
		re:    regexp.MustCompile(`(?m)^(  )(\S+)(  )`),
		style: func(p []string) string { return p[1] + ui.RenderCommand(p[2]) + p[3] },
	},
	// Flag type annotations: e.g. "--server string", "--interval duration".
	{
		re:    regexp.MustCompile(`(--?\S+\s+)(string|int|float|duration|strings)\b`),
		style: func(p []string) string { return p[1] + ui.RenderMuted(p[2]) },
	},
	// Default values, e.g. (default "http://localhost:8080").
	{
		re:    regexp.MustCompile(`\(default [^)]*\)`),
		style: func(p []string) string { return ui.RenderMuted(p[0]) },
	},
}

// colorizedHelpFunc returns a Cobra help function that post-processes the
// default help text with ANSI colors when the terminal supports it.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		orig := cmd.OutOrStdout()
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}

		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(orig)

		fmt.Fprint(orig, colorizeHelpOutput(buf.String()))
	}
}

// colorizeHelpOutput applies ANSI styling to Cobra's plain-text help.
func colorizeHelpOutput(s string) string {
	for _, r := range helpRules {
		s = r.re.ReplaceAllStringFunc(s, func(match string) string {
			return r.style(r.re.FindStringSubmatch(match))
		})
	}
	return s
}

package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"knlsetup/internal/install"
)

// RenderReport writes the human-readable install summary.
func RenderReport(w io.Writer, r install.Report) {
	bold := lipgloss.NewStyle().Bold(true).Inline(true)

	fmt.Fprintln(w)
	fmt.Fprintln(w, StatusStyle("ok").Render("✓")+" "+bold.Render("knl installed"))
	fmt.Fprintln(w)

	row := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(w, "  %s %s\n", LabelStyle.Render(fmt.Sprintf("%-12s", label)), value)
	}
	row("Root", r.Root)
	row("Topology", fmt.Sprintf("%s (%s)", r.Topology, r.Topology.ScopeReason))
	if r.Runtime != nil {
		row("Runtime", r.Runtime.String())
	}
	row("Source", r.Provenance)
	commands := make([]string, 0, len(r.Launchers))
	for _, b := range r.Launchers {
		commands = append(commands, b.Command)
	}
	row("Launchers", strings.Join(commands, ", "))
	if r.PathUpdated {
		row("PATH", "added to "+r.RCFile)
	}
	row("Crumbs", fmt.Sprintf("%d deployed in %d categories", r.Crumbs.Deployed, len(r.Crumbs.Categories)))

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w)
		for _, warning := range r.Warnings {
			fmt.Fprintf(w, "  %s %s\n", StatusStyle("warn").Render("!"), warning)
		}
	}
	if r.ShellInstructions != "" && !r.PathUpdated {
		fmt.Fprintln(w)
		for _, line := range strings.Split(r.ShellInstructions, "\n") {
			fmt.Fprintln(w, "  "+line)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, HeadingStyle.Render("Next steps:"))
	for i, step := range r.NextSteps {
		fmt.Fprintf(w, "  %d. %s\n", i+1, step)
	}
}

// Check is one line of a health report.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warn", "error"
	Summary string `json:"summary"`
}

// RenderChecks writes a health table under a bold title.
func RenderChecks(w io.Writer, title string, checks []Check) {
	bold := lipgloss.NewStyle().Bold(true).Inline(true)
	fmt.Fprintln(w, bold.Render(title))
	for _, c := range checks {
		label := strings.ToUpper(c.Status)
		fmt.Fprintf(w, "  %-12s %s    %s\n", c.Name+":", StatusStyle(c.Status).Inline(true).Render(fmt.Sprintf("%-5s", label)), c.Summary)
	}
}

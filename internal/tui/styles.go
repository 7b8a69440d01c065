package tui

import "github.com/charmbracelet/lipgloss"

var (
	// HeadingStyle styles section titles in reports.
	HeadingStyle = lipgloss.NewStyle().Bold(true)
	// LabelStyle styles the key column of key/value listings.
	LabelStyle = lipgloss.NewStyle().Faint(true)

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

	statusStyles = map[string]lipgloss.Style{
		"ok":        okStyle,
		"installed": okStyle,
		"updated":   okStyle,
		"found":     okStyle,

		"warn":    warnStyle,
		"skipped": warnStyle,
		"missing": warnStyle,

		"fail":  failStyle,
		"error": failStyle,

		"pending": lipgloss.NewStyle().Faint(true),
	}
)

// StatusStyle returns the lipgloss style for the given status string.
func StatusStyle(status string) lipgloss.Style {
	if s, ok := statusStyles[status]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

const defaultWrap = 80

// RenderMarkdown renders markdown for the terminal. On renderer failure the
// source is returned unchanged.
func RenderMarkdown(markdown string, width int) string {
	if width <= 0 {
		width = defaultWrap
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(out, "\n")
}

// PlainMarkdown renders with the ASCII style, for output that is not a
// terminal.
func PlainMarkdown(markdown string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("ascii"),
		glamour.WithWordWrap(defaultWrap),
	)
	if err != nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(out, "\n")
}

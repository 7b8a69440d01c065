package tui

import (
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// OutputMode describes how command output should be rendered.
type OutputMode int

const (
	// ModeTUI draws spinners and the interactive menu.
	ModeTUI OutputMode = iota
	// ModePlain writes static lines only.
	ModePlain
	// ModeJSON writes structured JSON output.
	ModeJSON
)

// DetectMode picks the output mode for out. term is the value of TERM.
func DetectMode(out io.Writer, term string, jsonOutput bool) OutputMode {
	if jsonOutput {
		return ModeJSON
	}
	if !IsTerminal(out) {
		return ModePlain
	}
	if term != "" && strings.EqualFold(term, "dumb") {
		return ModePlain
	}
	return ModeTUI
}

// IsTerminal reports whether v is a file attached to a terminal.
func IsTerminal(v any) bool {
	f, ok := v.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Interactive reports whether a full-screen prompt can run on in and out.
func Interactive(in io.Reader, out io.Writer) bool {
	return IsTerminal(in) && IsTerminal(out)
}

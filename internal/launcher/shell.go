package launcher

import (
	"fmt"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"knlsetup/internal/hostenv"
)

// Markers guarding the PATH block in shell startup files.
const (
	PathMarker    = "# >>> knl launcher path >>>"
	PathEndMarker = "# <<< knl launcher path <<<"
)

// ShellIntegrationError reports that PATH could not be updated
// automatically. It is never fatal; Instructions tells the user what to do.
type ShellIntegrationError struct {
	Shell        string
	Reason       string
	Instructions string
}

func (e *ShellIntegrationError) Error() string {
	if e.Shell == "" {
		return "shell integration skipped: " + e.Reason
	}
	return fmt.Sprintf("shell integration skipped for %s: %s", e.Shell, e.Reason)
}

// rcTarget is the startup file for a shell and the lines that put dir on PATH.
type rcTarget struct {
	File  string
	Lines []string
}

func rcFor(env hostenv.Environment, dir string) (rcTarget, error) {
	shell := env.ShellName()
	switch shell {
	case "bash":
		return posixRC(filepath.Join(env.Home, ".bashrc"), dir)
	case "zsh":
		base := env.Get("ZDOTDIR")
		if base == "" {
			base = env.Home
		}
		return posixRC(filepath.Join(base, ".zshrc"), dir)
	case "sh", "dash", "ksh", "mksh":
		return posixRC(filepath.Join(env.Home, ".profile"), dir)
	case "fish":
		file := filepath.Join(env.XDGConfigHome(), "fish", "conf.d", "knl.fish")
		return rcTarget{File: file, Lines: []string{"fish_add_path " + fishQuote(dir), PathEndMarker}}, nil
	case "":
		return rcTarget{}, &ShellIntegrationError{Reason: "SHELL is not set", Instructions: ManualInstructions(env, dir)}
	default:
		return rcTarget{}, &ShellIntegrationError{Shell: shell, Reason: "unrecognised shell", Instructions: ManualInstructions(env, dir)}
	}
}

func posixRC(file, dir string) (rcTarget, error) {
	quoted, err := syntax.Quote(dir, syntax.LangPOSIX)
	if err != nil {
		return rcTarget{}, err
	}
	return rcTarget{File: file, Lines: []string{`export PATH=` + quoted + `:"$PATH"`, PathEndMarker}}, nil
}

func fishQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// ManualInstructions tells the user how to put dir on PATH themselves.
func ManualInstructions(env hostenv.Environment, dir string) string {
	if env.GOOS == "windows" {
		return fmt.Sprintf("Add %s to your user PATH (Settings > Environment Variables), or run: setx PATH \"%%PATH%%;%s\"", dir, dir)
	}
	quoted, err := syntax.Quote(dir, syntax.LangPOSIX)
	if err != nil {
		quoted = dir
	}
	return fmt.Sprintf("Add this line to your shell startup file, then open a new terminal:\n  export PATH=%s:\"$PATH\"", quoted)
}

package pyenv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MaxFallbackRounds bounds how many times the fallback menu is shown.
const MaxFallbackRounds = 5

// ErrAborted is returned when the user leaves the fallback menu.
var ErrAborted = errors.New("runtime selection aborted")

type Choice int

const (
	ChoosePath Choice = iota
	ChooseInstructions
	ChooseAbort
)

func (c Choice) String() string {
	switch c {
	case ChoosePath:
		return "Enter the path to a Python interpreter"
	case ChooseInstructions:
		return "Show how to install Python"
	default:
		return "Abort"
	}
}

// Choices lists the menu entries in display order.
func Choices() []Choice {
	return []Choice{ChoosePath, ChooseInstructions, ChooseAbort}
}

// Menu is what a Prompter shows on each round.
type Menu struct {
	Requirement Requirement
	Rejected    []Rejection
	// Notice explains why the previous explicit path was refused.
	Notice string
	Round  int
}

// Selection is the user's answer to a Menu. Path is set for ChoosePath.
type Selection struct {
	Choice Choice
	Path   string
}

// Prompter drives the interactive fallback.
type Prompter interface {
	Choose(ctx context.Context, menu Menu) (Selection, error)
	Show(ctx context.Context, markdown string) error
}

// InvalidPathError explains why an explicitly supplied interpreter was refused.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Fallback runs the interactive recovery menu after the automatic scans came
// up empty. It returns a validated candidate or ErrAborted.
func (l *Locator) Fallback(ctx context.Context, req Requirement, prompter Prompter, rejected []Rejection) (Candidate, error) {
	menu := Menu{Requirement: req, Rejected: rejected}
	for round := 1; round <= MaxFallbackRounds; round++ {
		if err := ctx.Err(); err != nil {
			return Candidate{}, err
		}
		menu.Round = round

		sel, err := prompter.Choose(ctx, menu)
		if err != nil {
			return Candidate{}, err
		}

		switch sel.Choice {
		case ChoosePath:
			cand, err := l.ValidateExplicit(ctx, sel.Path, req)
			if err == nil {
				l.logger().Info("runtime supplied manually", "path", cand.Path, "version", cand.Version.String())
				return cand, nil
			}
			var invalid *InvalidPathError
			if !errors.As(err, &invalid) {
				return Candidate{}, err
			}
			l.logger().Warn("explicit runtime refused", "path", invalid.Path, "reason", invalid.Reason)
			menu.Notice = invalid.Error()
		case ChooseInstructions:
			if err := prompter.Show(ctx, Instructions(req, l.Env.GOOS)); err != nil {
				return Candidate{}, err
			}
			menu.Notice = ""
		default:
			return Candidate{}, ErrAborted
		}
	}
	return Candidate{}, fmt.Errorf("%w: no interpreter accepted after %d attempts", ErrAborted, MaxFallbackRounds)
}

// ValidateExplicit checks a user-supplied interpreter path and probes it.
// Refusals are reported as *InvalidPathError with a specific reason.
func (l *Locator) ValidateExplicit(ctx context.Context, path string, req Requirement) (Candidate, error) {
	if path == "" {
		return Candidate{}, &InvalidPathError{Path: `""`, Reason: "no path entered"}
	}
	path = l.Env.ExpandHome(path)
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.Env.Cwd, path)
	}

	info, err := os.Stat(path)
	switch {
	case err != nil && os.IsNotExist(err):
		return Candidate{}, &InvalidPathError{Path: path, Reason: "not found"}
	case err != nil:
		return Candidate{}, &InvalidPathError{Path: path, Reason: err.Error()}
	case info.IsDir():
		return Candidate{}, &InvalidPathError{Path: path, Reason: "is a directory"}
	case !isExecutable(path, l.Env.GOOS):
		return Candidate{}, &InvalidPathError{Path: path, Reason: "not executable"}
	}

	cand, err := Probe(ctx, l.Runner, path, l.Timeout)
	if err != nil {
		var probeErr *ProbeError
		if !errors.As(err, &probeErr) {
			return Candidate{}, err
		}
		return Candidate{}, &InvalidPathError{Path: path, Reason: probeErr.Err.Error()}
	}
	if !Acceptable(cand.Version, req) {
		return Candidate{}, &InvalidPathError{
			Path:   path,
			Reason: fmt.Sprintf("version too low: %s is below required %s", cand.Version, req),
		}
	}
	cand.Source = SourceManual
	return cand, nil
}

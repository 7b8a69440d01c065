package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/fang"

	"knlsetup/internal/crumbs"
	"knlsetup/internal/install"
	"knlsetup/internal/provision"
	"knlsetup/internal/pyenv"
	"knlsetup/internal/topology"
	"knlsetup/internal/tui"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitAborted     = 2
	ExitInterrupted = 130
)

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, install.ErrInterrupted), errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, pyenv.ErrAborted):
		return ExitAborted
	default:
		return ExitFailure
	}
}

const genericRemedy = "re-run with --verbose and check the log under the install root's logs directory"

// describeError turns an error into a one-line cause and a remedy.
func describeError(err error) (string, string) {
	var (
		provErr   *provision.ProvisionError
		notFound  *pyenv.RuntimeNotFoundError
		invalid   *pyenv.InvalidPathError
		deployErr *crumbs.DeploymentError
	)

	switch {
	case errors.Is(err, install.ErrInterrupted), errors.Is(err, context.Canceled):
		return "installation interrupted", "re-run knl-setup install; every step is safe to repeat"
	case errors.Is(err, pyenv.ErrAborted):
		return err.Error(), "install a newer Python, then re-run knl-setup install or pass --python PATH"
	case errors.As(err, &notFound):
		return err.Error(), fmt.Sprintf("install Python %s or newer (see the instructions above), or pass --python /path/to/python3", notFound.Requirement)
	case errors.As(err, &invalid):
		return "interpreter refused: " + invalid.Error(), "pass --python with a working interpreter that meets the minimum version"
	case errors.As(err, &provErr):
		return provErr.Error(), provErr.Remedy
	case errors.Is(err, provision.ErrNotInstalled):
		return err.Error(), "run knl-setup install"
	case errors.Is(err, topology.ErrConflictingScope):
		return err.Error(), "pass only one of --machine-local and --project-local"
	case errors.Is(err, provision.ErrConflictingSource):
		return err.Error(), "pick one source: --artifact-path or --version with --prebuilt, --ref or --version without it"
	case errors.As(err, &deployErr):
		return err.Error(), "check that the install root is writable"
	default:
		return err.Error(), genericRemedy
	}
}

func errorHandler(w io.Writer, _ fang.Styles, err error) {
	cause, remedy := describeError(err)
	fmt.Fprintln(w, tui.StatusStyle("error").Render("Error:")+" "+cause)
	fmt.Fprintln(w, tui.LabelStyle.Render("Try:")+"   "+remedy)
}

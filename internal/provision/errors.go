package provision

import (
	"errors"
	"fmt"
)

type Stage string

const (
	StageVenvCreate        Stage = "venv-create"
	StageDependencyInstall Stage = "dependency-install"
	StageDownload          Stage = "download"
	StageArtifactCopy      Stage = "artifact-copy"
	StageRecordWrite       Stage = "record-write"
)

// ProvisionError tags a failure with the stage it happened in and a concrete
// remedy for the user.
type ProvisionError struct {
	Stage  Stage
	Cause  error
	Remedy string
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Cause)
}

func (e *ProvisionError) Unwrap() error { return e.Cause }

// IsDownloadError reports whether err is a failed prebuilt download.
func IsDownloadError(err error) bool {
	var perr *ProvisionError
	return errors.As(err, &perr) && perr.Stage == StageDownload
}

// Remedy returns the generic remedy for a stage.
func Remedy(stage Stage) string {
	switch stage {
	case StageVenvCreate:
		return "make sure the interpreter ships the venv module (e.g. apt install python3-venv) or pass --python with another interpreter"
	case StageDependencyInstall:
		return "check your network connection and the requested --version/--ref, then re-run knl-setup install"
	case StageDownload:
		return "build knl locally and install it with --artifact-path, or install from source by dropping --prebuilt"
	case StageArtifactCopy:
		return "check that --artifact-path points at a readable knl executable"
	case StageRecordWrite:
		return "check that the install root is writable, then re-run knl-setup install"
	default:
		return "re-run knl-setup install --verbose and inspect the log"
	}
}

func stageError(stage Stage, cause error) *ProvisionError {
	return &ProvisionError{Stage: stage, Cause: cause, Remedy: Remedy(stage)}
}

package provision

import (
	"errors"
	"fmt"

	"knlsetup/internal/hostenv"
	"knlsetup/internal/paths"
	"knlsetup/internal/pyenv"
	"knlsetup/internal/topology"
)

// AppSource describes where knl itself comes from.
type AppSource struct {
	// Repo is the GitHub owner/name of the application.
	Repo string
	// Version is a release tag such as "v0.4.0" or "0.4.0".
	Version string
	// Ref is any git ref (branch, tag or commit); it wins over Version.
	Ref string
	// ArtifactPath is a local prebuilt executable to install.
	ArtifactPath string
	// SelfHosted is set when running from knl's own source tree.
	SelfHosted bool
	// SourceDir is the tree installed in editable mode when SelfHosted.
	SourceDir string
}

// ErrConflictingSource is returned when the acquisition settings do not fit
// the install mode.
var ErrConflictingSource = errors.New("conflicting knl source")

// Check rejects source settings the install mode would otherwise ignore.
// Exactly one acquisition method applies per run.
func (s AppSource) Check(mode topology.Mode) error {
	switch {
	case mode == topology.Source && s.ArtifactPath != "":
		return fmt.Errorf("%w: --artifact-path only applies with --prebuilt", ErrConflictingSource)
	case mode == topology.Prebuilt && s.Ref != "":
		return fmt.Errorf("%w: --ref only applies to source installs", ErrConflictingSource)
	case s.ArtifactPath != "" && s.Version != "":
		return fmt.Errorf("%w: --artifact-path and --version both name the artifact", ErrConflictingSource)
	}
	return nil
}

// DetectSelfHosted reports whether cwd is a checkout of the application: it
// must carry both the repository marker and the Python manifest.
func DetectSelfHosted(env hostenv.Environment) bool {
	return env.HasDir(topology.RepoMarker) && env.HasFile(pyenv.ManifestFile)
}

// Record is the installation record, the sole source of truth for what is
// installed under a root.
type Record struct {
	Root           string `yaml:"root" json:"root"`
	Scope          string `yaml:"scope" json:"scope"`
	Mode           string `yaml:"mode" json:"mode"`
	RuntimePath    string `yaml:"runtime_path,omitempty" json:"runtime_path,omitempty"`
	RuntimeVersion string `yaml:"runtime_version,omitempty" json:"runtime_version,omitempty"`
	Provenance     string `yaml:"provenance" json:"provenance"`
	Entrypoint     string `yaml:"entrypoint" json:"entrypoint"`
	PinFile        string `yaml:"pin_file,omitempty" json:"pin_file,omitempty"`

	// Warnings are reported to the user but never persisted.
	Warnings []string `yaml:"-" json:"warnings,omitempty"`
}

// Request bundles the inputs of one provisioning run.
type Request struct {
	Topology topology.Topology
	Paths    paths.InstallPaths
	// Runtime is unused in prebuilt mode.
	Runtime pyenv.Candidate
	Source  AppSource
}

package pyenv

import "fmt"

type Source string

const (
	SourceUnknown    Source = ""
	SourcePath       Source = "path"
	SourceConvention Source = "convention"
	SourceManual     Source = "manual"
)

// Candidate is an interpreter that answered a version probe.
type Candidate struct {
	Path     string  `json:"path"`
	Version  Version `json:"version"`
	Identity string  `json:"identity"`
	Source   Source  `json:"source"`
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s %s (%s)", c.Identity, c.Version, c.Path)
}

// Requirement is the minimum interpreter version, compared on major.minor.
type Requirement struct {
	Major  int    `json:"major"`
	Minor  int    `json:"minor"`
	Origin string `json:"origin,omitempty"`
}

func (r Requirement) String() string {
	return fmt.Sprintf("%d.%d", r.Major, r.Minor)
}

// Rejection records why a probed path was not accepted.
type Rejection struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Package topology decides where and how knl gets installed.
package topology

import (
	"encoding/json"
	"errors"
	"path/filepath"

	"knlsetup/internal/hostenv"
	"knlsetup/internal/paths"
)

// ErrConflictingScope is returned when both scope overrides are given.
var ErrConflictingScope = errors.New("--project-local and --machine-local are mutually exclusive")

// RepoMarker is the version-control directory that favours a project-local install.
const RepoMarker = ".git"

// ProjectDirName is the install root created inside a project.
const ProjectDirName = ".knl"

type Scope int

const (
	MachineLocal Scope = iota
	ProjectLocal
)

func (s Scope) String() string {
	if s == ProjectLocal {
		return "project-local"
	}
	return "machine-local"
}

func (s Scope) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

type Mode int

const (
	Source Mode = iota
	Prebuilt
)

func (m Mode) String() string {
	if m == Prebuilt {
		return "prebuilt"
	}
	return "source"
}

func (m Mode) MarshalJSON() ([]byte, error) { return json.Marshal(m.String()) }

// Reasons reported alongside the resolved scope.
const (
	ReasonFlag    = "flag"
	ReasonMarker  = "repository marker"
	ReasonDefault = "default"
	ReasonConfig  = "config"
)

// Topology is the resolved scope and mode for one install run.
type Topology struct {
	Scope       Scope  `json:"scope"`
	Mode        Mode   `json:"mode"`
	ScopeReason string `json:"scope_reason"`
}

func (t Topology) String() string {
	return t.Scope.String() + ", " + t.Mode.String()
}

// Flags carries the explicit overrides from the command line. DefaultScope,
// when non-empty, comes from the config file and ranks below the repository
// marker.
type Flags struct {
	ProjectLocal bool
	MachineLocal bool
	Prebuilt     bool
	DefaultScope string
}

// Resolve applies explicit flag > repository marker > default precedence to
// the scope. The mode depends only on the prebuilt flag.
func Resolve(flags Flags, env hostenv.Environment) (Topology, error) {
	t := Topology{Mode: Source}
	if flags.Prebuilt {
		t.Mode = Prebuilt
	}

	switch {
	case flags.ProjectLocal && flags.MachineLocal:
		return Topology{}, ErrConflictingScope
	case flags.ProjectLocal:
		t.Scope, t.ScopeReason = ProjectLocal, ReasonFlag
	case flags.MachineLocal:
		t.Scope, t.ScopeReason = MachineLocal, ReasonFlag
	case env.HasDir(RepoMarker):
		t.Scope, t.ScopeReason = ProjectLocal, ReasonMarker
	case flags.DefaultScope == ProjectLocal.String():
		t.Scope, t.ScopeReason = ProjectLocal, ReasonConfig
	default:
		t.Scope, t.ScopeReason = MachineLocal, ReasonDefault
	}
	return t, nil
}

// Root returns the install root for a scope.
func Root(scope Scope, env hostenv.Environment) string {
	if scope == ProjectLocal {
		return filepath.Join(env.Cwd, ProjectDirName)
	}
	if home := env.Get("KNL_HOME"); home != "" {
		return env.ExpandHome(home)
	}
	if env.GOOS == "windows" {
		if local := env.Get("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "knl")
		}
	}
	return filepath.Join(env.Home, ".local", "knl")
}

// Layout maps a topology onto concrete install paths.
func Layout(t Topology, env hostenv.Environment) paths.InstallPaths {
	return paths.ForRoot(Root(t.Scope, env), env.GOOS)
}

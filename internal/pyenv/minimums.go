package pyenv

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"knlsetup/internal/hostenv"
)

// Default minimum interpreter when the manifest does not declare one.
const (
	DefaultMajor = 3
	DefaultMinor = 11

	ManifestFile = "pyproject.toml"
)

const (
	OriginDefault  = "default"
	OriginManifest = "manifest"
	OriginFlag     = "flag"
)

var lowerBound = regexp.MustCompile(`>=\s*([0-9]+)\s*\.\s*([0-9]+)(?:\s*\.\s*[0-9]+)?`)

type pyproject struct {
	Project struct {
		RequiresPython string `toml:"requires-python"`
	} `toml:"project"`
}

// DefaultRequirement returns the built-in minimum.
func DefaultRequirement() Requirement {
	return Requirement{Major: DefaultMajor, Minor: DefaultMinor, Origin: OriginDefault}
}

// RequirementFromManifest reads requires-python from pyproject.toml in the
// working directory. Missing or unparsable declarations fall back to the
// default silently.
func RequirementFromManifest(env hostenv.Environment) Requirement {
	data, err := os.ReadFile(filepath.Join(env.Cwd, ManifestFile))
	if err != nil {
		return DefaultRequirement()
	}
	var manifest pyproject
	if err := toml.Unmarshal(data, &manifest); err != nil {
		return DefaultRequirement()
	}
	req, ok := ParseRequirement(manifest.Project.RequiresPython)
	if !ok {
		return DefaultRequirement()
	}
	req.Origin = OriginManifest
	return req
}

// ParseRequirement extracts the >=MAJOR.MINOR lower bound from a specifier
// such as ">= 3.11.2, <4".
func ParseRequirement(spec string) (Requirement, bool) {
	m := lowerBound.FindStringSubmatch(spec)
	if m == nil {
		return Requirement{}, false
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return Requirement{}, false
	}
	minor, err := strconv.Atoi(m[2])
	if err != nil {
		return Requirement{}, false
	}
	return Requirement{Major: major, Minor: minor}, true
}

// ParseMinimum parses a bare "3.12" style minimum given on the command line.
func ParseMinimum(value string) (Requirement, error) {
	value = strings.TrimSpace(value)
	v, err := ParseVersion(value)
	if err != nil || !strings.HasPrefix(value, strconv.Itoa(v.Major)+".") {
		return Requirement{}, fmt.Errorf("invalid python minimum %q (want MAJOR.MINOR)", value)
	}
	return Requirement{Major: v.Major, Minor: v.Minor, Origin: OriginFlag}, nil
}

package pyenv

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a parsed interpreter version.
type Version struct {
	Major int
	Minor int
	Patch int
}

var versionToken = regexp.MustCompile(`([0-9]+)\.([0-9]+)(?:\.([0-9]+))?`)

// ParseVersion extracts the first major.minor[.patch] token from text.
func ParseVersion(text string) (Version, error) {
	m := versionToken.FindStringSubmatch(text)
	if m == nil {
		return Version{}, fmt.Errorf("no version token in %q", firstLine(strings.TrimSpace(text)))
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch := 0
	if m[3] != "" {
		patch, _ = strconv.Atoi(m[3])
	}
	return Version{Major: major, Minor: minor, Patch: patch}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// MajorMinor renders the version without its patch component.
func (v Version) MajorMinor() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseVersion(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Acceptable reports whether v satisfies req under lexicographic comparison
// of (major, minor). The patch component never matters.
func Acceptable(v Version, req Requirement) bool {
	if v.Major != req.Major {
		return v.Major > req.Major
	}
	return v.Minor >= req.Minor
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}

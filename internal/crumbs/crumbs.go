// Package crumbs deploys the bundled know-how crumbs into an install root.
package crumbs

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

//go:embed content
var bundled embed.FS

const contentRoot = "content"

var categoryPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// Metadata is a crumb's YAML frontmatter.
type Metadata struct {
	Title         string    `yaml:"title"`
	Description   string    `yaml:"description"`
	Category      string    `yaml:"category"`
	Tags          []string  `yaml:"tags"`
	Difficulty    string    `yaml:"difficulty"`
	Created       time.Time `yaml:"created"`
	Updated       time.Time `yaml:"updated"`
	Author        string    `yaml:"author"`
	Related       []string  `yaml:"related"`
	Prerequisites []string  `yaml:"prerequisites"`
	AppliesTo     []string  `yaml:"applies_to"`
}

// Summary counts what Deploy did.
type Summary struct {
	Deployed   int      `json:"deployed"`
	Skipped    []string `json:"skipped,omitempty"`
	Categories []string `json:"categories"`
}

// DeploymentError wraps a failure to write crumbs. Crumbs are optional, so
// callers report it as a warning.
type DeploymentError struct {
	Dest string
	Err  error
}

func (e *DeploymentError) Error() string {
	return fmt.Sprintf("deploy crumbs to %s: %v", e.Dest, e.Err)
}

func (e *DeploymentError) Unwrap() error { return e.Err }

// Parse splits a crumb into validated frontmatter and markdown body.
func Parse(data []byte) (Metadata, string, error) {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(data, []byte("---\n")) {
		return Metadata{}, "", errors.New("missing frontmatter")
	}
	parts := strings.SplitN(string(data[4:]), "\n---\n", 2)
	if len(parts) != 2 {
		return Metadata{}, "", errors.New("unterminated frontmatter")
	}

	var meta Metadata
	if err := yaml.Unmarshal([]byte(parts[0]), &meta); err != nil {
		return Metadata{}, "", fmt.Errorf("frontmatter: %w", err)
	}
	if err := meta.validate(); err != nil {
		return Metadata{}, "", err
	}
	return meta, strings.TrimSpace(parts[1]), nil
}

func (m Metadata) validate() error {
	var missing []string
	if m.Title == "" {
		missing = append(missing, "title")
	}
	if m.Description == "" {
		missing = append(missing, "description")
	}
	if m.Category == "" {
		missing = append(missing, "category")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	if !categoryPattern.MatchString(m.Category) {
		return fmt.Errorf("invalid category %q", m.Category)
	}
	switch m.Difficulty {
	case "beginner", "intermediate", "advanced":
	default:
		return fmt.Errorf("invalid difficulty %q", m.Difficulty)
	}
	return nil
}

// Deploy writes the bundled crumbs to dest/<category>/<file>, overwriting
// earlier copies. Crumbs with invalid frontmatter are skipped and listed.
func Deploy(fsys afero.Fs, dest string) (Summary, error) {
	return deployFrom(bundled, contentRoot, fsys, dest)
}

func deployFrom(src fs.FS, root string, fsys afero.Fs, dest string) (Summary, error) {
	var summary Summary
	categories := map[string]bool{}

	err := fs.WalkDir(src, root, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		base := path.Base(name)
		if !strings.HasSuffix(base, ".md") {
			return nil
		}
		data, err := fs.ReadFile(src, name)
		if err != nil {
			return err
		}

		if strings.EqualFold(base, "README.md") {
			return writeFile(fsys, filepath.Join(dest, base), data)
		}

		meta, _, perr := Parse(data)
		if perr != nil {
			summary.Skipped = append(summary.Skipped, strings.TrimPrefix(name, root+"/")+": "+perr.Error())
			return nil
		}
		if err := writeFile(fsys, filepath.Join(dest, meta.Category, base), data); err != nil {
			return err
		}
		summary.Deployed++
		categories[meta.Category] = true
		return nil
	})

	for c := range categories {
		summary.Categories = append(summary.Categories, c)
	}
	sort.Strings(summary.Categories)

	if err != nil {
		return summary, &DeploymentError{Dest: dest, Err: err}
	}
	return summary, nil
}

func writeFile(fsys afero.Fs, target string, data []byte) error {
	if err := fsys.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(fsys, target, data, 0o644)
}

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"knlsetup/internal/hostenv"
)

// ValidationResult captures a single validation finding.
type ValidationResult struct {
	Level   string `json:"level"` // "error" or "warning"
	Message string `json:"message"`
}

var repoPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*/[A-Za-z0-9._-]+$`)
var minimumPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+$`)

// Validate checks the configuration and returns structured findings. Errors
// make the installer refuse to run; warnings are reported by doctor.
func (c Config) Validate(env hostenv.Environment) []ValidationResult {
	var results []ValidationResult
	results = append(results, c.validateRepo()...)
	results = append(results, c.validateScope()...)
	results = append(results, c.validateMinimum()...)
	results = append(results, c.validateSearchDirs(env)...)
	return results
}

// Errors filters results down to error-level findings.
func Errors(results []ValidationResult) []ValidationResult {
	var out []ValidationResult
	for _, r := range results {
		if r.Level == "error" {
			out = append(out, r)
		}
	}
	return out
}

func (c Config) validateRepo() []ValidationResult {
	if repoPattern.MatchString(c.SourceRepo) {
		return nil
	}
	return []ValidationResult{{
		Level:   "error",
		Message: fmt.Sprintf("source_repo %q must look like owner/name", c.SourceRepo),
	}}
}

func (c Config) validateScope() []ValidationResult {
	switch strings.TrimSpace(c.DefaultScope) {
	case "", "project-local", "machine-local":
		return nil
	}
	return []ValidationResult{{
		Level:   "error",
		Message: fmt.Sprintf("default_scope %q must be project-local or machine-local", c.DefaultScope),
	}}
}

func (c Config) validateMinimum() []ValidationResult {
	if c.PythonMin == "" || minimumPattern.MatchString(strings.TrimSpace(c.PythonMin)) {
		return nil
	}
	return []ValidationResult{{
		Level:   "error",
		Message: fmt.Sprintf("python_min %q must be MAJOR.MINOR", c.PythonMin),
	}}
}

func (c Config) validateSearchDirs(env hostenv.Environment) []ValidationResult {
	var results []ValidationResult
	for _, dir := range c.ExtraSearchDirs {
		info, err := os.Stat(env.ExpandHome(dir))
		if err != nil || !info.IsDir() {
			results = append(results, ValidationResult{
				Level:   "warning",
				Message: fmt.Sprintf("extra search directory %q does not exist", dir),
			})
		}
	}
	return results
}

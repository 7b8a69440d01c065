package pyenv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"knlsetup/internal/hostenv"
	"knlsetup/internal/logx"
	"knlsetup/internal/runner"
)

// RuntimeNotFoundError reports that no candidate met the requirement after the
// PATH and convention scans.
type RuntimeNotFoundError struct {
	Requirement Requirement
	Rejected    []Rejection
}

func (e *RuntimeNotFoundError) Error() string {
	if len(e.Rejected) == 0 {
		return fmt.Sprintf("no Python >= %s found on PATH or in known install locations", e.Requirement)
	}
	return fmt.Sprintf("no Python >= %s found (%d candidate(s) rejected)", e.Requirement, len(e.Rejected))
}

// Locator searches the host for an interpreter satisfying a requirement.
type Locator struct {
	Runner  runner.Runner
	Env     hostenv.Environment
	Timeout time.Duration
	// Conventions overrides DefaultConventions when non-nil.
	Conventions []string
	// ExtraDirs are searched after PATH and before the conventions.
	ExtraDirs []string
	Logger    logx.Logger
}

type search struct {
	req      Requirement
	seen     map[string]bool
	rejected []Rejection
}

// Locate returns the first acceptable interpreter, scanning PATH before the
// well-known install conventions. Candidates that time out or report a low
// version are recorded and skipped.
func (l *Locator) Locate(ctx context.Context, req Requirement) (Candidate, error) {
	s := &search{req: req, seen: map[string]bool{}}
	names := Basenames(req, l.Env.GOOS)

	for _, name := range names {
		for _, dir := range l.Env.PathList() {
			cand, ok, err := l.try(ctx, s, filepath.Join(dir, name), SourcePath)
			if err != nil {
				return Candidate{}, err
			}
			if ok {
				return cand, nil
			}
		}
	}

	for _, dir := range l.conventionDirs() {
		for _, name := range names {
			cand, ok, err := l.try(ctx, s, filepath.Join(dir, name), SourceConvention)
			if err != nil {
				return Candidate{}, err
			}
			if ok {
				return cand, nil
			}
		}
	}

	return Candidate{}, &RuntimeNotFoundError{Requirement: req, Rejected: s.rejected}
}

// try probes path if it is an unseen executable. It only returns an error
// when ctx is done.
func (l *Locator) try(ctx context.Context, s *search, path string, source Source) (Candidate, bool, error) {
	if err := ctx.Err(); err != nil {
		return Candidate{}, false, err
	}
	if !isExecutable(path, l.Env.GOOS) {
		return Candidate{}, false, nil
	}
	key := l.key(path)
	if s.seen[key] {
		return Candidate{}, false, nil
	}
	s.seen[key] = true

	cand, err := Probe(ctx, l.Runner, path, l.Timeout)
	if err != nil {
		var probeErr *ProbeError
		if !errors.As(err, &probeErr) {
			return Candidate{}, false, err
		}
		l.reject(s, path, probeErr.Err.Error())
		return Candidate{}, false, nil
	}
	if !Acceptable(cand.Version, s.req) {
		l.reject(s, path, fmt.Sprintf("version %s is below required %s", cand.Version, s.req))
		return Candidate{}, false, nil
	}

	cand.Source = source
	l.logger().Info("runtime selected", "path", cand.Path, "version", cand.Version.String(), "source", string(source))
	return cand, true, nil
}

func (l *Locator) reject(s *search, path, reason string) {
	s.rejected = append(s.rejected, Rejection{Path: path, Reason: reason})
	l.logger().Debug("candidate rejected", "path", path, "reason", reason)
}

// key identifies the interpreter behind path so symlinked aliases such as
// python3 -> python3.12 are probed once.
func (l *Locator) key(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return filepath.Clean(path)
}

func (l *Locator) conventionDirs() []string {
	patterns := l.Conventions
	if patterns == nil {
		patterns = DefaultConventions(l.Env)
	}

	var dirs []string
	for _, dir := range l.ExtraDirs {
		dirs = append(dirs, l.Env.ExpandHome(dir))
	}
	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[") {
			dirs = append(dirs, pattern)
			continue
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			l.logger().Debug("skip invalid search pattern", "pattern", pattern, "err", err)
			continue
		}
		sortNewestFirst(matches)
		dirs = append(dirs, matches...)
	}
	return dirs
}

// sortNewestFirst orders version-manager directories so the highest version
// embedded in the path comes first.
func sortNewestFirst(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		vi, erri := ParseVersion(filepath.ToSlash(paths[i]))
		vj, errj := ParseVersion(filepath.ToSlash(paths[j]))
		if erri == nil && errj == nil && vi != vj {
			return newer(vi, vj)
		}
		if (erri == nil) != (errj == nil) {
			return erri == nil
		}
		return paths[i] > paths[j]
	})
}

func newer(a, b Version) bool {
	if a.Major != b.Major {
		return a.Major > b.Major
	}
	if a.Minor != b.Minor {
		return a.Minor > b.Minor
	}
	return a.Patch > b.Patch
}

func isExecutable(path, goos string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if goos == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

func (l *Locator) logger() logx.Logger {
	if l.Logger == nil {
		return logx.Nop()
	}
	return l.Logger
}

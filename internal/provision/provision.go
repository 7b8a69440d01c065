// Package provision builds the isolated environment (or places the prebuilt
// artifact) under an install root and records what was installed.
package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"knlsetup/internal/logx"
	"knlsetup/internal/paths"
	"knlsetup/internal/runner"
	"knlsetup/internal/topology"
)

// Provisioner installs knl into an install root. Re-running it against an
// existing root is an upgrade; there is no separate code path.
type Provisioner struct {
	Runner   runner.Runner
	Releases ReleaseSource
	Git      RefResolver
	HTTP     *http.Client
	Logger   logx.Logger
	// Progress receives the download progress bar; nil disables it.
	Progress        io.Writer
	DownloadTimeout time.Duration
	UserAgent       string
	GOOS            string
	GOARCH          string
}

// Provision runs every stage for the requested mode and writes the record
// last. Any stage failure aborts the run with a *ProvisionError; the record
// is then left as it was.
func (p *Provisioner) Provision(ctx context.Context, req Request) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if err := req.Paths.EnsureRoot(); err != nil {
		return Record{}, stageError(StageRecordWrite, err)
	}

	var (
		rec Record
		err error
	)
	if req.Topology.Mode == topology.Prebuilt {
		rec, err = p.prebuilt(ctx, req)
	} else {
		rec, err = p.source(ctx, req)
	}
	if err != nil {
		return Record{}, err
	}

	rec.Root = req.Paths.Root
	rec.Scope = req.Topology.Scope.String()
	rec.Mode = req.Topology.Mode.String()

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if err := dropOtherMode(req.Paths, req.Topology.Mode); err != nil {
		return Record{}, stageError(StageRecordWrite, err)
	}
	if err := writeRecord(req.Paths, rec); err != nil {
		return Record{}, stageError(StageRecordWrite, err)
	}
	p.logger().Info("installation recorded", "root", rec.Root, "provenance", rec.Provenance)
	return rec, nil
}

// dropOtherMode removes what an earlier install in the other mode left
// under the root.
func dropOtherMode(ip paths.InstallPaths, mode topology.Mode) error {
	stale := []string{ip.VenvDir, ip.PinFile}
	if mode == topology.Source {
		stale = []string{ip.ArtifactFile}
	}
	for _, path := range stale {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove stale %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func (p *Provisioner) source(ctx context.Context, req Request) (Record, error) {
	ip := req.Paths
	python := req.Runtime.Path
	if python == "" {
		return Record{}, stageError(StageVenvCreate, errors.New("no Python runtime was located"))
	}

	if err := os.RemoveAll(ip.VenvDir); err != nil {
		return Record{}, stageError(StageVenvCreate, fmt.Errorf("remove old environment: %w", err))
	}
	if err := p.run(ctx, StageVenvCreate, python, "-m", "venv", ip.VenvDir); err != nil {
		return Record{}, err
	}

	venvPython := ip.VenvPython()
	if _, err := p.Runner.Run(ctx, venvPython, []string{"-m", "pip", "install", "--upgrade", "pip"}, runner.Options{}); err != nil {
		if ctx.Err() != nil {
			return Record{}, ctx.Err()
		}
		p.logger().Warn("pip self-upgrade failed, continuing", "err", err)
	}

	var rec Record
	var args []string
	if req.Source.SelfHosted {
		dir, err := filepath.Abs(req.Source.SourceDir)
		if err != nil {
			return Record{}, stageError(StageDependencyInstall, err)
		}
		args = []string{"-m", "pip", "install", "-e", dir}
		rec.Provenance = "editable:" + dir
	} else {
		ref, warning, err := p.resolveRef(ctx, req.Source)
		if err != nil {
			return Record{}, err
		}
		if warning != "" {
			rec.Warnings = append(rec.Warnings, warning)
		}
		args = []string{"-m", "pip", "install", "git+" + RepoURL(req.Source.Repo) + "@" + ref}
		rec.Provenance = fmt.Sprintf("git:%s@%s", req.Source.Repo, ref)
	}
	if err := p.run(ctx, StageDependencyInstall, venvPython, args...); err != nil {
		return Record{}, err
	}

	rec.RuntimePath = python
	rec.RuntimeVersion = req.Runtime.Version.String()
	rec.PinFile = ip.PinFile
	rec.Entrypoint = ip.VenvEntrypoint("knl")
	return rec, nil
}

// resolveRef picks the git ref to install: explicit ref, then the requested
// version's tag, then the latest release. When release metadata is
// unavailable the default branch is used and a warning is returned.
func (p *Provisioner) resolveRef(ctx context.Context, src AppSource) (string, string, error) {
	if src.Ref != "" {
		return src.Ref, "", nil
	}
	repoURL := RepoURL(src.Repo)

	if src.Version != "" {
		if p.Git != nil {
			tag, err := p.Git.ResolveTag(ctx, repoURL, src.Version)
			if err == nil {
				return tag, "", nil
			}
			if ctx.Err() != nil {
				return "", "", ctx.Err()
			}
			p.logger().Debug("tag lookup failed, using version as given", "version", src.Version, "err", err)
		}
		return src.Version, "", nil
	}

	release, err := p.Releases.Latest(ctx, src.Repo)
	if err == nil {
		return release.Tag, "", nil
	}
	if ctx.Err() != nil {
		return "", "", ctx.Err()
	}

	branch := FallbackBranch
	if p.Git != nil {
		if b, gerr := p.Git.DefaultBranch(ctx, repoURL); gerr == nil {
			branch = b
		} else if ctx.Err() != nil {
			return "", "", ctx.Err()
		} else {
			p.logger().Debug("default branch lookup failed", "err", gerr)
		}
	}
	warning := fmt.Sprintf("latest release of %s unavailable (%v); installing the %s branch instead", src.Repo, err, branch)
	p.logger().Warn(warning)
	return branch, warning, nil
}

func (p *Provisioner) prebuilt(ctx context.Context, req Request) (Record, error) {
	ip := req.Paths
	src := req.Source
	rec := Record{Entrypoint: ip.ArtifactFile}

	if src.ArtifactPath != "" {
		abs, err := filepath.Abs(src.ArtifactPath)
		if err != nil {
			return Record{}, stageError(StageArtifactCopy, err)
		}
		if err := copyArtifact(abs, ip.ArtifactFile); err != nil {
			return Record{}, stageError(StageArtifactCopy, err)
		}
		rec.Provenance = "artifact:local:" + abs
		return rec, nil
	}

	var (
		release Release
		err     error
	)
	if src.Version != "" {
		release, err = p.Releases.ByTag(ctx, src.Repo, src.Version)
	} else {
		release, err = p.Releases.Latest(ctx, src.Repo)
	}
	if err != nil {
		if ctx.Err() != nil {
			return Record{}, ctx.Err()
		}
		return Record{}, stageError(StageDownload, fmt.Errorf("resolve release of %s: %w", src.Repo, err))
	}

	asset, err := SelectAsset(release, p.goos(), p.goarch())
	if err != nil {
		return Record{}, stageError(StageDownload, err)
	}
	p.logger().Info("downloading artifact", "release", release.Tag, "asset", asset.Name)
	if err := p.downloadArtifact(ctx, asset, ip.ArtifactFile); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return Record{}, ctx.Err()
		}
		return Record{}, stageError(StageDownload, err)
	}
	rec.Provenance = fmt.Sprintf("artifact:%s@%s:%s", src.Repo, release.Tag, asset.Name)
	return rec, nil
}

// run executes one stage subprocess. Interruption is returned as the context
// error so callers can tell it apart from a stage failure.
func (p *Provisioner) run(ctx context.Context, stage Stage, command string, args ...string) error {
	p.logger().Debug("run", "stage", string(stage), "cmd", command, "args", strings.Join(args, " "))
	res, err := p.Runner.Run(ctx, command, args, runner.Options{})
	if out := res.Combined(); out != "" {
		p.logger().Debug("output", "stage", string(stage), "text", out)
	}
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	cause := fmt.Errorf("%s %s: %w", filepath.Base(command), strings.Join(args, " "), err)
	if tail := lastLines(res.Combined(), 5); tail != "" {
		cause = fmt.Errorf("%w\n%s", cause, tail)
	}
	return stageError(stage, cause)
}

func lastLines(text string, n int) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func (p *Provisioner) goos() string {
	if p.GOOS != "" {
		return p.GOOS
	}
	return runtime.GOOS
}

func (p *Provisioner) goarch() string {
	if p.GOARCH != "" {
		return p.GOARCH
	}
	return runtime.GOARCH
}

func (p *Provisioner) logger() logx.Logger {
	if p.Logger == nil {
		return logx.Nop()
	}
	return p.Logger
}

// Package install sequences one knl installation: topology, runtime,
// provisioning, launchers and the best-effort extras.
package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"

	"knlsetup/internal/crumbs"
	"knlsetup/internal/hostenv"
	"knlsetup/internal/launcher"
	"knlsetup/internal/logx"
	"knlsetup/internal/paths"
	"knlsetup/internal/provision"
	"knlsetup/internal/pyenv"
	"knlsetup/internal/textpatch"
	"knlsetup/internal/topology"
)

// ErrInterrupted is returned when the context is cancelled mid-run.
var ErrInterrupted = errors.New("installation interrupted")

const (
	GitignoreFile   = ".gitignore"
	GitignoreMarker = "# KNL installation"
)

// Options are the per-run inputs, already merged from flags, env and config.
type Options struct {
	Flags topology.Flags
	// MinPython overrides the manifest requirement, e.g. "3.12".
	MinPython string
	// PythonPath skips the search and validates this interpreter instead.
	PythonPath     string
	Source         provision.AppSource
	NonInteractive bool
}

// Status receives the name of each stage as it starts.
type Status interface {
	Update(msg string)
}

// pauser is implemented by statuses that must yield the terminal to the
// interactive fallback.
type pauser interface {
	Pause()
}

// Orchestrator wires the installer components together. Prompter may be nil,
// in which case the interactive fallback is unavailable.
type Orchestrator struct {
	Env         hostenv.Environment
	Locator     *pyenv.Locator
	Provisioner *provision.Provisioner
	Binder      *launcher.Binder
	Prompter    pyenv.Prompter
	Fs          afero.Fs
	Logger      logx.Logger
	Status      Status
	// Out receives acquisition instructions in non-interactive mode.
	Out io.Writer
	// Markdown renders instructions for Out; nil writes them raw.
	Markdown func(string) string
}

// Run performs the installation. Errors from the core stages are fatal;
// crumbs and .gitignore problems become report warnings.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Report, error) {
	var report Report

	o.stage(ctx, "Resolving install topology")
	if err := interrupted(ctx); err != nil {
		return report, err
	}
	topo, err := topology.Resolve(opts.Flags, o.Env)
	if err != nil {
		return report, err
	}
	if err := opts.Source.Check(topo.Mode); err != nil {
		return report, err
	}
	ip := topology.Layout(topo, o.Env)
	report.Root = ip.Root
	report.Topology = topo
	o.logger().Info("topology resolved", "scope", topo.Scope, "mode", topo.Mode, "reason", topo.ScopeReason, "root", ip.Root)

	req, err := o.requirement(opts)
	if err != nil {
		return report, err
	}
	report.Requirement = req

	var runtime pyenv.Candidate
	if topo.Mode == topology.Source {
		o.stage(ctx, fmt.Sprintf("Looking for Python >= %s", req))
		runtime, err = o.locate(ctx, req, opts)
		if err != nil {
			return report, err
		}
		report.Runtime = &runtime
	}

	o.stage(ctx, "Installing knl into "+ip.Root)
	if err := interrupted(ctx); err != nil {
		return report, err
	}
	src := opts.Source
	if src.ArtifactPath == "" && !src.SelfHosted && topo.Mode == topology.Source && provision.DetectSelfHosted(o.Env) {
		src.SelfHosted = true
		src.SourceDir = o.Env.Cwd
	}
	rec, err := o.Provisioner.Provision(ctx, provision.Request{
		Topology: topo,
		Paths:    ip,
		Runtime:  runtime,
		Source:   src,
	})
	if err != nil {
		if ctx.Err() != nil {
			return report, fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
		}
		return report, err
	}
	report.Provenance = rec.Provenance
	report.Warnings = append(report.Warnings, rec.Warnings...)

	o.stage(ctx, "Creating launchers")
	if err := interrupted(ctx); err != nil {
		return report, err
	}
	bound, err := o.Binder.Bind(rec, topo, ip)
	if err != nil {
		return report, fmt.Errorf("bind launchers: %w", err)
	}
	report.Launchers = bound.Bindings
	report.PathUpdated = bound.PathUpdated
	report.RCFile = bound.RCFile
	report.ShellInstructions = bound.Instructions
	if bound.ShellError != nil {
		o.logger().Warn("shell integration skipped", "shell", bound.ShellError.Shell, "reason", bound.ShellError.Reason)
		report.Warnings = append(report.Warnings, bound.ShellError.Error())
	}

	o.stage(ctx, "Deploying know-how crumbs")
	if err := interrupted(ctx); err != nil {
		return report, err
	}
	summary, err := crumbs.Deploy(o.Fs, ip.CrumbsDir)
	report.Crumbs = summary
	if err != nil {
		o.logger().Warn("crumb deployment failed", "err", err)
		report.Warnings = append(report.Warnings, err.Error())
	}

	if topo.Scope == topology.ProjectLocal {
		if err := interrupted(ctx); err != nil {
			return report, err
		}
		if err := o.ignoreRoot(ip); err != nil {
			o.logger().Warn("gitignore update failed", "err", err)
			report.Warnings = append(report.Warnings, "could not update "+GitignoreFile+": "+err.Error())
		}
	}

	report.NextSteps = NextSteps(o.Fs, o.Env, bound)
	o.logger().Info("installation complete", "root", ip.Root, "provenance", rec.Provenance)
	return report, nil
}

func (o *Orchestrator) requirement(opts Options) (pyenv.Requirement, error) {
	if opts.MinPython != "" {
		return pyenv.ParseMinimum(opts.MinPython)
	}
	return pyenv.RequirementFromManifest(o.Env), nil
}

func (o *Orchestrator) locate(ctx context.Context, req pyenv.Requirement, opts Options) (pyenv.Candidate, error) {
	if opts.PythonPath != "" {
		cand, err := o.Locator.ValidateExplicit(ctx, opts.PythonPath, req)
		return cand, o.wrapInterrupt(ctx, err)
	}

	cand, err := o.Locator.Locate(ctx, req)
	if err == nil {
		return cand, nil
	}
	var notFound *pyenv.RuntimeNotFoundError
	if !errors.As(err, &notFound) {
		return pyenv.Candidate{}, o.wrapInterrupt(ctx, err)
	}

	if opts.NonInteractive || o.Prompter == nil {
		o.showInstructions(req)
		return pyenv.Candidate{}, err
	}
	if p, ok := o.Status.(pauser); ok {
		p.Pause()
	}
	cand, err = o.Locator.Fallback(ctx, req, o.Prompter, notFound.Rejected)
	return cand, o.wrapInterrupt(ctx, err)
}

func (o *Orchestrator) showInstructions(req pyenv.Requirement) {
	if o.Out == nil {
		return
	}
	doc := pyenv.Instructions(req, o.Env.GOOS)
	if o.Markdown != nil {
		doc = o.Markdown(doc)
	}
	fmt.Fprintln(o.Out, doc)
}

// ignoreRoot keeps the project-local install root out of version control.
func (o *Orchestrator) ignoreRoot(ip paths.InstallPaths) error {
	rel, err := filepath.Rel(o.Env.Cwd, ip.Root)
	if err != nil {
		return err
	}
	entry := filepath.ToSlash(rel) + "/"
	target := filepath.Join(o.Env.Cwd, GitignoreFile)

	data, err := afero.ReadFile(o.Fs, target)
	if err == nil && textpatch.HasLine(data, entry) {
		return nil
	}
	_, err = textpatch.AppendOnce(o.Fs, target, GitignoreMarker, []string{entry})
	return err
}

func (o *Orchestrator) stage(ctx context.Context, msg string) {
	if ctx.Err() != nil {
		return
	}
	o.logger().Debug("stage", "name", msg)
	if o.Status != nil {
		o.Status.Update(msg)
	}
}

func (o *Orchestrator) wrapInterrupt(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return fmt.Errorf("%w: %v", ErrInterrupted, err)
	}
	return err
}

func (o *Orchestrator) logger() logx.Logger {
	if o.Logger == nil {
		return logx.Nop()
	}
	return o.Logger
}

func interrupted(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInterrupted, err)
	}
	return nil
}

// Package launcher writes the knl command shims and puts their directory on
// the user's PATH.
package launcher

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"knlsetup/internal/hostenv"
	"knlsetup/internal/paths"
	"knlsetup/internal/provision"
	"knlsetup/internal/textpatch"
	"knlsetup/internal/topology"
)

// Binding is one generated launcher.
type Binding struct {
	Command string `json:"command"`
	Shim    string `json:"shim"`
	Target  string `json:"target"`
}

// Result describes what Bind changed.
type Result struct {
	Dir      string    `json:"dir"`
	Bindings []Binding `json:"bindings"`
	// RCFile is the startup file holding the PATH block, if any.
	RCFile        string `json:"rc_file,omitempty"`
	PathUpdated   bool   `json:"path_updated"`
	AlreadyOnPath bool   `json:"already_on_path"`
	// Instructions is set whenever the user must act to get knl on PATH.
	Instructions string                 `json:"instructions,omitempty"`
	ShellError   *ShellIntegrationError `json:"-"`
}

// Binder creates launchers. All writes go through Fs.
type Binder struct {
	Fs  afero.Fs
	Env hostenv.Environment
}

// Bind regenerates every shim to point at rec.Entrypoint and, for
// machine-local installs, adds the launcher directory to the shell startup
// file exactly once. Shell integration problems are reported in the result,
// not as errors.
func (b *Binder) Bind(rec provision.Record, t topology.Topology, ip paths.InstallPaths) (Result, error) {
	if rec.Entrypoint == "" {
		return Result{}, errors.New("installation record has no entrypoint")
	}
	res := Result{Dir: ip.BinDir}

	if err := b.Fs.MkdirAll(ip.BinDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create launcher directory: %w", err)
	}
	content, err := Shim(rec.Entrypoint, b.Env.GOOS)
	if err != nil {
		return Result{}, err
	}
	for _, command := range Commands {
		shim := filepath.Join(ip.BinDir, ShimName(command, b.Env.GOOS))
		if err := afero.WriteFile(b.Fs, shim, []byte(content), 0o755); err != nil {
			return Result{}, fmt.Errorf("write launcher %s: %w", command, err)
		}
		if err := b.Fs.Chmod(shim, 0o755); err != nil {
			return Result{}, fmt.Errorf("chmod launcher %s: %w", command, err)
		}
		res.Bindings = append(res.Bindings, Binding{Command: command, Shim: shim, Target: rec.Entrypoint})
	}

	if t.Scope != topology.MachineLocal {
		res.Instructions = fmt.Sprintf("Project-local launchers live in %s; run them from there or add the directory to PATH.", ip.BinDir)
		return res, nil
	}
	b.integrate(&res, ip.BinDir)
	return res, nil
}

func (b *Binder) integrate(res *Result, dir string) {
	if b.Env.OnPath(dir) {
		res.AlreadyOnPath = true
		return
	}
	if b.Env.GOOS == "windows" {
		res.ShellError = &ShellIntegrationError{
			Shell:        "windows",
			Reason:       "PATH is not edited automatically on Windows",
			Instructions: ManualInstructions(b.Env, dir),
		}
		res.Instructions = res.ShellError.Instructions
		return
	}

	target, err := rcFor(b.Env, dir)
	if err != nil {
		var shellErr *ShellIntegrationError
		if !errors.As(err, &shellErr) {
			shellErr = &ShellIntegrationError{Shell: b.Env.ShellName(), Reason: err.Error(), Instructions: ManualInstructions(b.Env, dir)}
		}
		res.ShellError = shellErr
		res.Instructions = shellErr.Instructions
		return
	}

	res.RCFile = target.File
	wrote, err := textpatch.AppendOnce(b.Fs, target.File, PathMarker, target.Lines)
	if err != nil {
		res.ShellError = &ShellIntegrationError{
			Shell:        b.Env.ShellName(),
			Reason:       err.Error(),
			Instructions: ManualInstructions(b.Env, dir),
		}
		res.Instructions = res.ShellError.Instructions
		return
	}
	res.PathUpdated = wrote
}

// Installed lists the shim paths for an install root that exist on fs.
func Installed(fs afero.Fs, ip paths.InstallPaths, goos string) []string {
	var found []string
	for _, command := range Commands {
		shim := filepath.Join(ip.BinDir, ShimName(command, goos))
		if ok, _ := afero.Exists(fs, shim); ok {
			found = append(found, shim)
		}
	}
	return found
}

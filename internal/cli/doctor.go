package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"knlsetup/internal/config"
	"knlsetup/internal/hostenv"
	"knlsetup/internal/launcher"
	"knlsetup/internal/provision"
	"knlsetup/internal/pyenv"
	"knlsetup/internal/topology"
	"knlsetup/internal/tui"
)

var (
	doctorMachineLocal bool
	doctorProjectLocal bool
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment and the knl installation",
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}
	cmd.Flags().BoolVar(&doctorMachineLocal, "machine-local", false, "Check the machine-local installation")
	cmd.Flags().BoolVar(&doctorProjectLocal, "project-local", false, "Check the project-local installation")
	addSearchFlags(cmd)
	return cmd
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	env, err := loadEnvironment()
	if err != nil {
		return err
	}

	var checks []tui.Check
	s, err := loadSettings(cmd.Flags(), env)
	if err != nil {
		// Nothing else can be resolved without settings.
		checks = append(checks, tui.Check{Name: "Config", Status: "error", Summary: err.Error()})
		return writeDoctorResult(cmd, env.Cwd, checks)
	}
	checks = append(checks, checkConfig(s, env))

	req, err := requirementFor(s, env)
	if err != nil {
		checks = append(checks, tui.Check{Name: "Python", Status: "error", Summary: err.Error()})
	} else {
		checks = append(checks, checkPython(ctx, s.locator(env), req))
	}

	topo, err := topology.Resolve(topology.Flags{
		ProjectLocal: doctorProjectLocal,
		MachineLocal: doctorMachineLocal,
		DefaultScope: s.defaultScope(),
	}, env)
	if err != nil {
		checks = append(checks, tui.Check{Name: "Install", Status: "error", Summary: err.Error()})
		return writeDoctorResult(cmd, env.Cwd, checks)
	}
	ip := topology.Layout(topo, env)

	status, err := inspectInstall(afero.NewOsFs(), env, ip, topo.Scope.String())
	checks = append(checks, checkInstall(status, err))
	if status.Installed {
		if rt, ok := checkRecordedRuntime(ctx, s, status.Record); ok {
			checks = append(checks, rt)
		}
		checks = append(checks, checkLaunchers(status))
		checks = append(checks, checkPath(env, ip.BinDir, status.OnPath))
	}

	return writeDoctorResult(cmd, ip.Root, checks)
}

func checkConfig(s *settings, env hostenv.Environment) tui.Check {
	results := s.effective().Validate(env)
	errs := config.Errors(results)
	switch {
	case len(errs) > 0:
		return tui.Check{Name: "Config", Status: "error", Summary: errs[0].Message}
	case len(results) > 0:
		return tui.Check{Name: "Config", Status: "warn", Summary: results[0].Message}
	}
	return tui.Check{Name: "Config", Status: "ok", Summary: s.path}
}

func checkPython(ctx context.Context, l *pyenv.Locator, req pyenv.Requirement) tui.Check {
	cand, err := l.Locate(ctx, req)
	if err == nil {
		return tui.Check{Name: "Python", Status: "ok", Summary: cand.String()}
	}
	var notFound *pyenv.RuntimeNotFoundError
	if errors.As(err, &notFound) {
		return tui.Check{
			Name:    "Python",
			Status:  "error",
			Summary: fmt.Sprintf("no Python >= %s (%d rejected)", req, len(notFound.Rejected)),
		}
	}
	return tui.Check{Name: "Python", Status: "error", Summary: err.Error()}
}

func checkInstall(status statusResult, err error) tui.Check {
	switch {
	case errors.Is(err, provision.ErrNotInstalled):
		return tui.Check{Name: "Install", Status: "warn", Summary: "not installed in " + status.Root}
	case err != nil:
		return tui.Check{Name: "Install", Status: "error", Summary: err.Error()}
	}
	return tui.Check{
		Name:    "Install",
		Status:  "ok",
		Summary: fmt.Sprintf("%s (%s, %s)", status.Record.Provenance, status.Scope, status.Record.Mode),
	}
}

// checkRecordedRuntime re-probes the interpreter the venv was built from.
func checkRecordedRuntime(ctx context.Context, s *settings, rec *provision.Record) (tui.Check, bool) {
	if rec == nil || rec.RuntimePath == "" {
		return tui.Check{}, false
	}
	cand, err := pyenv.Probe(ctx, processRunner, rec.RuntimePath, s.probeTimeout())
	if err != nil {
		return tui.Check{Name: "Runtime", Status: "error", Summary: err.Error()}, true
	}
	if rec.RuntimeVersion != "" && cand.Version.String() != rec.RuntimeVersion {
		return tui.Check{
			Name:    "Runtime",
			Status:  "warn",
			Summary: fmt.Sprintf("%s is now %s, installed with %s", rec.RuntimePath, cand.Version, rec.RuntimeVersion),
		}, true
	}
	return tui.Check{Name: "Runtime", Status: "ok", Summary: cand.String()}, true
}

func checkLaunchers(status statusResult) tui.Check {
	if len(status.Missing) > 0 {
		return tui.Check{Name: "Launchers", Status: "warn", Summary: "missing " + strings.Join(status.Missing, ", ")}
	}
	return tui.Check{Name: "Launchers", Status: "ok", Summary: strings.Join(launcher.Commands, ", ")}
}

func checkPath(env hostenv.Environment, dir string, onPath bool) tui.Check {
	if onPath {
		return tui.Check{Name: "PATH", Status: "ok", Summary: dir}
	}
	summary := dir + " is not on PATH"
	if env.ShellName() != "" {
		summary += " for " + env.ShellName()
	}
	return tui.Check{Name: "PATH", Status: "warn", Summary: summary}
}

func writeDoctorResult(cmd *cobra.Command, root string, checks []tui.Check) error {
	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), checks)
	}
	tui.RenderChecks(cmd.OutOrStdout(), "KNL HEALTH: "+root, checks)
	return nil
}

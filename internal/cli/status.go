package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"knlsetup/internal/hostenv"
	"knlsetup/internal/launcher"
	"knlsetup/internal/paths"
	"knlsetup/internal/provision"
	"knlsetup/internal/topology"
)

var (
	statusMachineLocal bool
	statusProjectLocal bool
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the knl installation for this directory",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	cmd.Flags().BoolVar(&statusMachineLocal, "machine-local", false, "Inspect the machine-local installation")
	cmd.Flags().BoolVar(&statusProjectLocal, "project-local", false, "Inspect the project-local installation")
	return cmd
}

type statusResult struct {
	Root      string            `json:"root"`
	Scope     string            `json:"scope"`
	Installed bool              `json:"installed"`
	Record    *provision.Record `json:"record,omitempty"`
	Launchers []string          `json:"launchers"`
	OnPath    bool              `json:"on_path"`
	Missing   []string          `json:"missing,omitempty"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	s, err := loadSettings(nil, env)
	if err != nil {
		return err
	}

	topo, err := topology.Resolve(topology.Flags{
		ProjectLocal: statusProjectLocal,
		MachineLocal: statusMachineLocal,
		DefaultScope: s.defaultScope(),
	}, env)
	if err != nil {
		return err
	}
	ip := topology.Layout(topo, env)

	result, err := inspectInstall(afero.NewOsFs(), env, ip, topo.Scope.String())
	if err != nil && !errors.Is(err, provision.ErrNotInstalled) {
		return err
	}

	if outputJSON {
		if werr := writeJSON(cmd.OutOrStdout(), result); werr != nil {
			return werr
		}
		return err
	}
	writeStatusTable(cmd, result)
	return err
}

// inspectInstall reads back what an install root holds. It returns
// provision.ErrNotInstalled alongside a partial result for empty roots.
func inspectInstall(fs afero.Fs, env hostenv.Environment, ip paths.InstallPaths, scope string) (statusResult, error) {
	result := statusResult{
		Root:      ip.Root,
		Scope:     scope,
		Launchers: []string{},
		OnPath:    env.OnPath(ip.BinDir),
	}

	rec, err := provision.LoadRecord(ip)
	if err != nil {
		return result, err
	}
	result.Installed = true
	result.Record = &rec

	if found := launcher.Installed(fs, ip, env.GOOS); found != nil {
		result.Launchers = found
	}
	for _, command := range launcher.Commands {
		if !containsShim(result.Launchers, launcher.ShimName(command, env.GOOS)) {
			result.Missing = append(result.Missing, command)
		}
	}
	if ok, _ := afero.Exists(fs, rec.Entrypoint); !ok && rec.Entrypoint != "" {
		result.Missing = append(result.Missing, rec.Entrypoint)
	}
	return result, nil
}

func containsShim(shims []string, name string) bool {
	for _, shim := range shims {
		if filepath.Base(shim) == name {
			return true
		}
	}
	return false
}

func writeStatusTable(cmd *cobra.Command, r statusResult) {
	out := cmd.OutOrStdout()
	if !r.Installed {
		fmt.Fprintf(out, "knl is not installed in %s (%s)\n", r.Root, r.Scope)
		return
	}

	w := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintf(w, "Root:\t%s\n", r.Root)
	fmt.Fprintf(w, "Scope:\t%s\n", r.Scope)
	fmt.Fprintf(w, "Mode:\t%s\n", r.Record.Mode)
	fmt.Fprintf(w, "Source:\t%s\n", r.Record.Provenance)
	if r.Record.RuntimeVersion != "" {
		fmt.Fprintf(w, "Python:\t%s (%s)\n", r.Record.RuntimeVersion, r.Record.RuntimePath)
	}
	fmt.Fprintf(w, "Entrypoint:\t%s\n", r.Record.Entrypoint)
	for _, shim := range r.Launchers {
		fmt.Fprintf(w, "Launcher:\t%s\n", shim)
	}
	onPath := "no"
	if r.OnPath {
		onPath = "yes"
	}
	fmt.Fprintf(w, "On PATH:\t%s\n", onPath)
	w.Flush()

	if len(r.Missing) > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "Missing:")
		for _, m := range r.Missing {
			fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", m)
		}
	}
}

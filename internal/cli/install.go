package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"knlsetup/internal/install"
	"knlsetup/internal/launcher"
	"knlsetup/internal/logx"
	"knlsetup/internal/provision"
	"knlsetup/internal/pyenv"
	"knlsetup/internal/topology"
	"knlsetup/internal/tui"
)

var (
	installMachineLocal bool
	installProjectLocal bool
	installPrebuilt     bool
	installVersion      string
	installRef          string
	installArtifactPath string
	installPython       string
)

// Overridden in tests.
var newRefResolver = func() provision.RefResolver { return provision.GitRemote{} }

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install or upgrade knl",
		Long: "Install knl, or upgrade an existing installation in place.\n\n" +
			"Inside a git repository the install is project-local (.knl/) unless\n" +
			"--machine-local is given.",
		Args: cobra.NoArgs,
		RunE: runInstall,
	}

	cmd.Flags().BoolVar(&installMachineLocal, "machine-local", false, "Install for the current user")
	cmd.Flags().BoolVar(&installProjectLocal, "project-local", false, "Install into .knl/ in the current directory")
	cmd.Flags().BoolVar(&installPrebuilt, "prebuilt", false, "Install a prebuilt knl executable instead of building a Python environment")
	cmd.Flags().StringVar(&installVersion, "version", "", "Release to install, e.g. v0.4.0")
	cmd.Flags().StringVar(&installRef, "ref", "", "Git branch, tag or commit to install (source mode)")
	cmd.Flags().StringVar(&installArtifactPath, "artifact-path", "", "Local prebuilt knl executable to install")
	cmd.Flags().StringVar(&installPython, "python", "", "Use this Python interpreter instead of searching")
	addSettingsFlags(cmd)
	return cmd
}

// addSettingsFlags declares the flags that layer over config and environment.
func addSettingsFlags(cmd *cobra.Command) {
	cmd.Flags().String("source-repo", "", "GitHub repository to install knl from (owner/name)")
	cmd.Flags().Bool("non-interactive", false, "Never prompt; fail with instructions when no Python is found")
	cmd.Flags().Duration("download-timeout", 0, "Timeout for the prebuilt artifact download")
	addSearchFlags(cmd)
}

func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().String("min-python", "", "Minimum Python version, overriding pyproject.toml (e.g. 3.12)")
	cmd.Flags().Duration("probe-timeout", 0, "Timeout for each interpreter version probe")
	cmd.Flags().StringSlice("search-dir", nil, "Extra directory to search for Python (repeatable)")
}

func runInstall(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	s, err := loadSettings(cmd.Flags(), env)
	if err != nil {
		return err
	}
	if err := s.validate(env); err != nil {
		return err
	}
	if installVersion != "" {
		if err := provision.ValidateVersion(installVersion); err != nil {
			return fmt.Errorf("--version: %w", err)
		}
	}

	flags := topology.Flags{
		ProjectLocal: installProjectLocal,
		MachineLocal: installMachineLocal,
		Prebuilt:     installPrebuilt,
		DefaultScope: s.defaultScope(),
	}
	topo, err := topology.Resolve(flags, env)
	if err != nil {
		return err
	}
	src := provision.AppSource{
		Repo:         s.sourceRepo(),
		Version:      installVersion,
		Ref:          installRef,
		ArtifactPath: installArtifactPath,
	}
	if err := src.Check(topo.Mode); err != nil {
		return err
	}
	ip := topology.Layout(topo, env)

	logger, closer, logErr := logx.New(ip.LogsDir, verbose)
	var log logx.Logger = logger
	if logErr != nil {
		log = logx.Stderr(verbose)
		log.Warn("file logging disabled", "err", logErr)
	} else {
		defer closer.Close()
	}
	log.Info("install started", "version", appVersion, "root", ip.Root, "topology", topo.String())

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	mode := tui.DetectMode(out, env.Get("TERM"), outputJSON)
	nonInteractive := s.nonInteractive()

	fs := afero.NewOsFs()
	locator := s.locator(env)
	locator.Logger = log

	orch := &install.Orchestrator{
		Env:     env,
		Locator: locator,
		Provisioner: &provision.Provisioner{
			Runner:          processRunner,
			Releases:        s.releaseSource(ip, appVersion),
			Git:             newRefResolver(),
			Logger:          log,
			DownloadTimeout: s.downloadTimeout(),
			UserAgent:       userAgent(appVersion),
			GOOS:            env.GOOS,
			GOARCH:          runtime.GOARCH,
		},
		Binder:   &launcher.Binder{Fs: fs, Env: env},
		Fs:       fs,
		Logger:   log,
		Markdown: tui.PlainMarkdown,
		Out:      out,
	}
	if mode == tui.ModeJSON {
		orch.Out = errOut
	}
	if !nonInteractive {
		orch.Prompter = newPrompter(cmd.InOrStdin(), orch.Out, mode)
	}

	switch mode {
	case tui.ModeTUI:
		status := tui.NewStatusWriter(errOut)
		defer status.Stop()
		orch.Status = status
		orch.Markdown = func(md string) string { return tui.RenderMarkdown(md, 0) }
		orch.Provisioner.Progress = errOut
	case tui.ModePlain:
		orch.Status = tui.PlainStatus{W: errOut}
	}

	report, err := orch.Run(ctx, install.Options{
		Flags:          flags,
		MinPython:      s.pythonMin(),
		PythonPath:     installPython,
		Source:         src,
		NonInteractive: nonInteractive,
	})
	if status, ok := orch.Status.(*tui.StatusWriter); ok {
		status.Stop()
	}
	if err != nil {
		log.Error("install failed", "err", err)
		return err
	}

	if mode == tui.ModeJSON {
		return writeJSON(out, report)
	}
	tui.RenderReport(out, report)
	return nil
}

func newPrompter(in io.Reader, out io.Writer, mode tui.OutputMode) pyenv.Prompter {
	if mode == tui.ModeTUI && tui.Interactive(in, out) {
		return &tui.Prompter{In: in, Out: out}
	}
	return tui.NewLinePrompter(in, out)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}

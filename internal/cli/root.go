package cli

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"knlsetup/internal/hostenv"
	"knlsetup/internal/logx"
	"knlsetup/internal/runner"
)

var (
	outputJSON bool
	verbose    bool
	configFile string
	appVersion = "dev"
)

// Overridden in tests.
var (
	loadEnvironment               = hostenv.FromOS
	processRunner   runner.Runner = runner.CmdRunner{}
)

// Execute runs the root command and returns the process exit code.
func Execute(version string) int {
	err := fang.Execute(
		context.Background(),
		newRootCmd(version),
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(errorHandler),
	)
	return exitCode(err)
}

func newRootCmd(version string) *cobra.Command {
	appVersion = version
	cmd := &cobra.Command{
		Use:   "knl-setup",
		Short: "Install the knl knowledge retention CLI",
		Long: "knl-setup finds a suitable Python, installs knl into a machine-local or\n" +
			"project-local root, and puts the knl and kn launchers on your PATH.",
	}

	cmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output machine-readable JSON")
	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Mirror the debug log to stderr")
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default $XDG_CONFIG_HOME/knl/setup.yaml)")

	cmd.AddCommand(newInstallCmd())
	cmd.AddCommand(newLocateCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version))
	return cmd
}

// logger is the console logger for commands that keep no log file.
func logger() logx.Logger { return logx.Stderr(verbose) }

package pyenv

import (
	"fmt"
	"path/filepath"

	"knlsetup/internal/hostenv"
)

// MaxMinor is the highest python3.<minor> basename that is searched for.
const MaxMinor = 20

// Basenames lists the interpreter executable names to look for, most
// specific first.
func Basenames(req Requirement, goos string) []string {
	var names []string
	if req.Major <= 3 {
		for minor := req.Minor; minor <= MaxMinor; minor++ {
			names = append(names, fmt.Sprintf("python3.%d", minor))
		}
	}
	names = append(names, "python3", "python")

	if goos != "windows" {
		return names
	}
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, name+".exe")
	}
	return out
}

// DefaultConventions lists the glob patterns of well-known install
// locations, in search order.
func DefaultConventions(env hostenv.Environment) []string {
	home := env.Home
	if env.GOOS == "windows" {
		var patterns []string
		if local := env.Get("LOCALAPPDATA"); local != "" {
			patterns = append(patterns,
				filepath.Join(local, "Programs", "Python", "Python3*"),
				filepath.Join(local, "Microsoft", "WindowsApps"),
			)
		}
		patterns = append(patterns,
			filepath.Join(home, ".pyenv", "pyenv-win", "versions", "*"),
			filepath.Join(home, "miniconda3"),
			filepath.Join(home, "anaconda3"),
			`C:\Python3*`,
		)
		return patterns
	}

	patterns := []string{
		filepath.Join(home, ".local", "bin"),
		filepath.Join(home, ".pyenv", "versions", "*", "bin"),
		filepath.Join(home, ".asdf", "installs", "python", "*", "bin"),
		filepath.Join(home, ".local", "share", "mise", "installs", "python", "*", "bin"),
		filepath.Join(home, ".local", "share", "uv", "python", "*", "bin"),
		filepath.Join(home, "miniconda3", "bin"),
		filepath.Join(home, "miniforge3", "bin"),
		filepath.Join(home, "anaconda3", "bin"),
		filepath.Join(home, "miniconda3", "envs", "*", "bin"),
	}
	if env.GOOS == "darwin" {
		patterns = append(patterns,
			"/opt/homebrew/bin",
			"/opt/homebrew/opt/python@3.*/bin",
			"/usr/local/opt/python@3.*/bin",
			"/Library/Frameworks/Python.framework/Versions/*/bin",
		)
	}
	patterns = append(patterns,
		"/usr/local/bin",
		"/usr/bin",
		"/opt/python*/bin",
	)
	return patterns
}

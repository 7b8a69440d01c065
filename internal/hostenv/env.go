// Package hostenv captures the ambient process environment once so resolvers
// and binders can be exercised against fixture environments.
package hostenv

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Environment is a snapshot of the host state the installer reasons about.
type Environment struct {
	Cwd   string
	Home  string
	Shell string
	GOOS  string
	Vars  map[string]string
}

// FromOS snapshots the running process.
func FromOS() (Environment, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Environment{}, fmt.Errorf("get working directory: %w", err)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Environment{}, fmt.Errorf("detect user home: %w", err)
	}

	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		vars[key] = value
	}

	env := Environment{
		Cwd:  cwd,
		Home: home,
		GOOS: runtime.GOOS,
		Vars: vars,
	}
	env.Shell = env.Get("SHELL")
	return env, nil
}

// Get returns the value of an environment variable. Lookups are
// case-insensitive on Windows.
func (e Environment) Get(key string) string {
	if v, ok := e.Vars[key]; ok {
		return v
	}
	if e.GOOS == "windows" {
		for k, v := range e.Vars {
			if strings.EqualFold(k, key) {
				return v
			}
		}
	}
	return ""
}

// PathList splits PATH into its directories, dropping empty and relative
// entries.
func (e Environment) PathList() []string {
	sep := ":"
	if e.GOOS == "windows" {
		sep = ";"
	}
	raw := e.Get("PATH")
	if raw == "" {
		return nil
	}
	var dirs []string
	for _, dir := range strings.Split(raw, sep) {
		dir = strings.TrimSpace(dir)
		if dir == "" || !filepath.IsAbs(dir) {
			continue
		}
		dirs = append(dirs, filepath.Clean(dir))
	}
	return dirs
}

// OnPath reports whether dir is already listed in PATH.
func (e Environment) OnPath(dir string) bool {
	clean := filepath.Clean(dir)
	for _, entry := range e.PathList() {
		if entry == clean {
			return true
		}
	}
	return false
}

// HasDir reports whether rel (relative to Cwd) is an existing directory.
func (e Environment) HasDir(rel string) bool {
	info, err := os.Stat(e.resolve(rel))
	return err == nil && info.IsDir()
}

// HasFile reports whether rel (relative to Cwd) is an existing regular file.
func (e Environment) HasFile(rel string) bool {
	info, err := os.Stat(e.resolve(rel))
	return err == nil && info.Mode().IsRegular()
}

// ShellName returns the basename of the login shell, e.g. "zsh".
func (e Environment) ShellName() string {
	if e.Shell == "" {
		return ""
	}
	name := filepath.Base(e.Shell)
	return strings.TrimSuffix(strings.ToLower(name), ".exe")
}

// XDGConfigHome returns $XDG_CONFIG_HOME or ~/.config.
func (e Environment) XDGConfigHome() string {
	if v := e.Get("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	return filepath.Join(e.Home, ".config")
}

// ExpandHome replaces a leading "~" with Home.
func (e Environment) ExpandHome(p string) string {
	if p == "~" {
		return e.Home
	}
	if strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		return filepath.Join(e.Home, p[2:])
	}
	return p
}

func (e Environment) resolve(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(e.Cwd, rel)
}

package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout file and directory names under an install root.
const (
	VenvDirName      = "venv"
	BinDirName       = "bin"
	PinFileName      = ".python-version"
	VersionFileName  = ".knl-version"
	RecordFileName   = "install.yaml"
	CrumbsDirName    = "know-how/crumbs"
	LogsDirName      = "logs"
	ReleaseCacheName = "release_cache.json"
	ArtifactBaseName = "knl"
)

// InstallPaths captures canonical locations inside an install root.
type InstallPaths struct {
	Root         string
	VenvDir      string
	BinDir       string
	ArtifactFile string
	PinFile      string
	VersionFile  string
	RecordFile   string
	CrumbsDir    string
	LogsDir      string
	ReleaseCache string
	GOOS         string
}

// ForRoot lays out an install root for the given target OS.
func ForRoot(root, goos string) InstallPaths {
	return InstallPaths{
		Root:         root,
		VenvDir:      filepath.Join(root, VenvDirName),
		BinDir:       filepath.Join(root, BinDirName),
		ArtifactFile: filepath.Join(root, executableName(ArtifactBaseName, goos)),
		PinFile:      filepath.Join(root, PinFileName),
		VersionFile:  filepath.Join(root, VersionFileName),
		RecordFile:   filepath.Join(root, RecordFileName),
		CrumbsDir:    filepath.Join(root, filepath.FromSlash(CrumbsDirName)),
		LogsDir:      filepath.Join(root, LogsDirName),
		ReleaseCache: filepath.Join(root, ReleaseCacheName),
		GOOS:         goos,
	}
}

// VenvBinDir is the scripts directory of the isolated environment.
func (p InstallPaths) VenvBinDir() string {
	if p.GOOS == "windows" {
		return filepath.Join(p.VenvDir, "Scripts")
	}
	return filepath.Join(p.VenvDir, "bin")
}

// VenvPython is the interpreter inside the isolated environment.
func (p InstallPaths) VenvPython() string {
	return filepath.Join(p.VenvBinDir(), executableName("python", p.GOOS))
}

// VenvEntrypoint is a console script installed into the isolated environment.
func (p InstallPaths) VenvEntrypoint(command string) string {
	return filepath.Join(p.VenvBinDir(), executableName(command, p.GOOS))
}

// EnsureRoot makes sure the install root exists on disk.
func (p InstallPaths) EnsureRoot() error {
	if err := os.MkdirAll(p.Root, 0o755); err != nil {
		return fmt.Errorf("create install root: %w", err)
	}
	return nil
}

func executableName(base, goos string) string {
	if goos == "windows" {
		return base + ".exe"
	}
	return base
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// DirExists reports whether a path exists and is a directory.
func DirExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

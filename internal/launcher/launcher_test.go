package launcher

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mvdan.cc/sh/v3/syntax"

	"knlsetup/internal/hostenv"
	"knlsetup/internal/paths"
	"knlsetup/internal/provision"
	"knlsetup/internal/topology"
)

func testEnv(shell string) hostenv.Environment {
	return hostenv.Environment{
		Cwd:   "/work/project",
		Home:  "/home/u",
		Shell: shell,
		GOOS:  "linux",
		Vars:  map[string]string{"PATH": "/usr/bin:/bin"},
	}
}

var machine = topology.Topology{Scope: topology.MachineLocal, Mode: topology.Source}

func TestPosixShimQuotesTargetAndParses(t *testing.T) {
	content, err := Shim("/home/u/My Apps/knl's/venv/bin/knl", "linux")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(content, "#!/bin/sh\n"))
	assert.Contains(t, content, `"$@"`)
	assert.Contains(t, content, "exec ")

	file, err := syntax.NewParser().Parse(strings.NewReader(content), "knl")
	require.NoError(t, err)
	require.Len(t, file.Stmts, 1)

	call, ok := file.Stmts[0].Cmd.(*syntax.CallExpr)
	require.True(t, ok)
	require.Len(t, call.Args, 3)
	assert.Equal(t, "exec", call.Args[0].Lit())
}

func TestWindowsShim(t *testing.T) {
	content, err := Shim(`C:\Users\u\knl\venv\Scripts\knl.exe`, "windows")
	require.NoError(t, err)
	assert.Equal(t, "@echo off\r\nrem Generated by knl-setup. Regenerated on every install.\r\n\"C:\\Users\\u\\knl\\venv\\Scripts\\knl.exe\" %*\r\nexit /b %ERRORLEVEL%\r\n", content)

	_, err = Shim(`C:\odd"name\knl.exe`, "windows")
	require.Error(t, err)
	assert.Equal(t, "knl.cmd", ShimName("knl", "windows"))
}

func TestBindTwiceWritesPathBlockOnce(t *testing.T) {
	fs := afero.NewMemMapFs()
	env := testEnv("/bin/bash")
	ip := paths.ForRoot("/home/u/.local/knl", "linux")
	rec := provision.Record{Entrypoint: ip.VenvEntrypoint("knl")}
	b := &Binder{Fs: fs, Env: env}

	first, err := b.Bind(rec, machine, ip)
	require.NoError(t, err)
	assert.True(t, first.PathUpdated)
	assert.Equal(t, "/home/u/.bashrc", first.RCFile)
	require.Len(t, first.Bindings, 2)
	assert.Equal(t, "kn", first.Bindings[1].Command)

	second, err := b.Bind(rec, machine, ip)
	require.NoError(t, err)
	assert.False(t, second.PathUpdated)

	rc, err := afero.ReadFile(fs, "/home/u/.bashrc")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(rc), PathMarker))
	assert.Contains(t, string(rc), `export PATH=/home/u/.local/knl/bin:"$PATH"`)

	for _, shim := range Installed(fs, ip, "linux") {
		data, err := afero.ReadFile(fs, shim)
		require.NoError(t, err)
		assert.Contains(t, string(data), "exec /home/u/.local/knl/venv/bin/knl")
		info, err := fs.Stat(shim)
		require.NoError(t, err)
		assert.Equal(t, "-rwxr-xr-x", info.Mode().Perm().String())
	}
}

func TestBindSecondRootAddsItsOwnPathBlock(t *testing.T) {
	fs := afero.NewMemMapFs()
	b := &Binder{Fs: fs, Env: testEnv("/bin/bash")}

	for _, root := range []string{"/home/u/.local/knl", "/opt/knlhome"} {
		ip := paths.ForRoot(root, "linux")
		res, err := b.Bind(provision.Record{Entrypoint: ip.ArtifactFile}, machine, ip)
		require.NoError(t, err)
		assert.True(t, res.PathUpdated, root)
		assert.Nil(t, res.ShellError)
	}

	rc, err := afero.ReadFile(fs, "/home/u/.bashrc")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(rc), PathMarker))
	assert.Contains(t, string(rc), `export PATH=/home/u/.local/knl/bin:"$PATH"`)
	assert.Contains(t, string(rc), `export PATH=/opt/knlhome/bin:"$PATH"`)

	ip := paths.ForRoot("/opt/knlhome", "linux")
	again, err := b.Bind(provision.Record{Entrypoint: ip.ArtifactFile}, machine, ip)
	require.NoError(t, err)
	assert.False(t, again.PathUpdated)
}

func TestBindOverwritesShimsWithNewTarget(t *testing.T) {
	fs := afero.NewMemMapFs()
	ip := paths.ForRoot("/home/u/.local/knl", "linux")
	b := &Binder{Fs: fs, Env: testEnv("/bin/zsh")}

	_, err := b.Bind(provision.Record{Entrypoint: ip.VenvEntrypoint("knl")}, machine, ip)
	require.NoError(t, err)
	_, err = b.Bind(provision.Record{Entrypoint: ip.ArtifactFile}, machine, ip)
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, "/home/u/.local/knl/bin/knl")
	require.NoError(t, err)
	assert.Contains(t, string(data), "exec /home/u/.local/knl/knl ")
	assert.NotContains(t, string(data), "venv")
}

func TestShellStartupFiles(t *testing.T) {
	tests := []struct {
		shell string
		vars  map[string]string
		file  string
		line  string
	}{
		{shell: "/usr/bin/zsh", file: "/home/u/.zshrc", line: "export PATH="},
		{shell: "/usr/bin/zsh", vars: map[string]string{"ZDOTDIR": "/home/u/.config/zsh"}, file: "/home/u/.config/zsh/.zshrc", line: "export PATH="},
		{shell: "/bin/dash", file: "/home/u/.profile", line: "export PATH="},
		{shell: "/usr/local/bin/fish", file: "/home/u/.config/fish/conf.d/knl.fish", line: "fish_add_path '/home/u/.local/knl/bin'"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			env := testEnv(tt.shell)
			for k, v := range tt.vars {
				env.Vars[k] = v
			}
			ip := paths.ForRoot("/home/u/.local/knl", "linux")
			res, err := (&Binder{Fs: fs, Env: env}).Bind(provision.Record{Entrypoint: ip.ArtifactFile}, machine, ip)
			require.NoError(t, err)
			assert.Equal(t, tt.file, res.RCFile)

			data, err := afero.ReadFile(fs, tt.file)
			require.NoError(t, err)
			assert.Contains(t, string(data), tt.line)
			assert.Contains(t, string(data), PathEndMarker)
		})
	}
}

func TestUnknownShellDegradesToInstructions(t *testing.T) {
	fs := afero.NewMemMapFs()
	ip := paths.ForRoot("/home/u/.local/knl", "linux")
	res, err := (&Binder{Fs: fs, Env: testEnv("/usr/bin/nu")}).Bind(provision.Record{Entrypoint: ip.ArtifactFile}, machine, ip)
	require.NoError(t, err)

	require.NotNil(t, res.ShellError)
	assert.Equal(t, "nu", res.ShellError.Shell)
	assert.False(t, res.PathUpdated)
	assert.Contains(t, res.Instructions, "export PATH=/home/u/.local/knl/bin")
	assert.Len(t, res.Bindings, 2)

	entries, err := afero.ReadDir(fs, "/home/u")
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, e.IsDir(), "no startup file should be created, found %s", e.Name())
	}
}

func TestAlreadyOnPathSkipsStartupFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	env := testEnv("/bin/bash")
	env.Vars["PATH"] = "/home/u/.local/knl/bin:/usr/bin"
	ip := paths.ForRoot("/home/u/.local/knl", "linux")

	res, err := (&Binder{Fs: fs, Env: env}).Bind(provision.Record{Entrypoint: ip.ArtifactFile}, machine, ip)
	require.NoError(t, err)
	assert.True(t, res.AlreadyOnPath)
	ok, _ := afero.Exists(fs, "/home/u/.bashrc")
	assert.False(t, ok)
}

func TestProjectLocalNeverTouchesStartupFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	ip := paths.ForRoot("/work/project/.knl", "linux")
	project := topology.Topology{Scope: topology.ProjectLocal}

	res, err := (&Binder{Fs: fs, Env: testEnv("/bin/bash")}).Bind(provision.Record{Entrypoint: ip.ArtifactFile}, project, ip)
	require.NoError(t, err)
	assert.Empty(t, res.RCFile)
	assert.Contains(t, res.Instructions, "/work/project/.knl/bin")
	ok, _ := afero.Exists(fs, "/home/u/.bashrc")
	assert.False(t, ok)
}

func TestWindowsMachineLocalGivesManualInstructions(t *testing.T) {
	fs := afero.NewMemMapFs()
	env := testEnv("")
	env.GOOS = "windows"
	ip := paths.ForRoot(`C:\Users\u\AppData\Local\knl`, "windows")

	res, err := (&Binder{Fs: fs, Env: env}).Bind(provision.Record{Entrypoint: ip.ArtifactFile}, machine, ip)
	require.NoError(t, err)
	require.NotNil(t, res.ShellError)
	assert.Contains(t, res.Instructions, "setx PATH")
	assert.Equal(t, "knl.cmd", ShimName(res.Bindings[0].Command, "windows"))
}

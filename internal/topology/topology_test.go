package topology

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knlsetup/internal/hostenv"
)

func envWithMarker(t *testing.T, marker bool) hostenv.Environment {
	t.Helper()
	cwd := t.TempDir()
	if marker {
		require.NoError(t, os.Mkdir(filepath.Join(cwd, RepoMarker), 0o755))
	}
	return hostenv.Environment{Cwd: cwd, Home: t.TempDir(), GOOS: "linux", Vars: map[string]string{}}
}

func TestResolvePrecedence(t *testing.T) {
	tests := []struct {
		name   string
		flags  Flags
		marker bool
		scope  Scope
		reason string
	}{
		{"explicit project-local without marker", Flags{ProjectLocal: true}, false, ProjectLocal, ReasonFlag},
		{"explicit machine-local beats marker", Flags{MachineLocal: true}, true, MachineLocal, ReasonFlag},
		{"marker favours project-local", Flags{}, true, ProjectLocal, ReasonMarker},
		{"marker beats config default", Flags{DefaultScope: "machine-local"}, true, ProjectLocal, ReasonMarker},
		{"config default", Flags{DefaultScope: "project-local"}, false, ProjectLocal, ReasonConfig},
		{"built-in default", Flags{}, false, MachineLocal, ReasonDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.flags, envWithMarker(t, tt.marker))
			require.NoError(t, err)
			assert.Equal(t, tt.scope, got.Scope)
			assert.Equal(t, tt.reason, got.ScopeReason)
			assert.Equal(t, Source, got.Mode)
		})
	}
}

func TestResolveConflictingScope(t *testing.T) {
	_, err := Resolve(Flags{ProjectLocal: true, MachineLocal: true}, envWithMarker(t, false))
	require.ErrorIs(t, err, ErrConflictingScope)
}

func TestResolveModeIsIndependent(t *testing.T) {
	got, err := Resolve(Flags{Prebuilt: true}, envWithMarker(t, true))
	require.NoError(t, err)
	assert.Equal(t, Prebuilt, got.Mode)
	assert.Equal(t, ProjectLocal, got.Scope)
	assert.Equal(t, "project-local, prebuilt", got.String())
}

func TestMarkerFileIsNotADirectory(t *testing.T) {
	env := envWithMarker(t, false)
	require.NoError(t, os.WriteFile(filepath.Join(env.Cwd, RepoMarker), []byte("gitdir: ../x"), 0o644))
	got, err := Resolve(Flags{}, env)
	require.NoError(t, err)
	assert.Equal(t, MachineLocal, got.Scope)
}

func TestLayout(t *testing.T) {
	env := envWithMarker(t, false)

	project := Layout(Topology{Scope: ProjectLocal}, env)
	assert.Equal(t, filepath.Join(env.Cwd, ".knl"), project.Root)
	assert.Equal(t, filepath.Join(env.Cwd, ".knl", "bin"), project.BinDir)

	machine := Layout(Topology{Scope: MachineLocal}, env)
	assert.Equal(t, filepath.Join(env.Home, ".local", "knl"), machine.Root)

	env.Vars["KNL_HOME"] = "~/custom"
	assert.Equal(t, filepath.Join(env.Home, "custom"), Root(MachineLocal, env))

	win := hostenv.Environment{Home: `C:\Users\u`, GOOS: "windows", Vars: map[string]string{"LOCALAPPDATA": `C:\Users\u\AppData\Local`}}
	assert.Equal(t, filepath.Join(`C:\Users\u\AppData\Local`, "knl"), Root(MachineLocal, win))
}

func TestTopologyJSON(t *testing.T) {
	data, err := json.Marshal(Topology{Scope: ProjectLocal, Mode: Prebuilt, ScopeReason: ReasonFlag})
	require.NoError(t, err)
	assert.JSONEq(t, `{"scope":"project-local","mode":"prebuilt","scope_reason":"flag"}`, string(data))
}

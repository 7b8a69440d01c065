package pyenv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"knlsetup/internal/hostenv"
	"knlsetup/internal/runner"
)

type scripted struct {
	stdout string
	stderr string
	err    error
	hang   bool
}

type fakeRunner struct {
	mu      sync.Mutex
	outputs map[string]scripted
	calls   []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]scripted{}}
}

func (f *fakeRunner) Run(ctx context.Context, command string, args []string, _ runner.Options) (runner.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	out, ok := f.outputs[command]
	f.mu.Unlock()

	if !ok {
		return runner.Result{}, errors.New("exec: no such file")
	}
	if out.hang {
		<-ctx.Done()
		return runner.Result{}, ctx.Err()
	}
	return runner.Result{Stdout: []byte(out.stdout), Stderr: []byte(out.stderr)}, out.err
}

func (f *fakeRunner) called(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == path {
			return true
		}
	}
	return false
}

// fakeInterpreter creates an executable placeholder and scripts its
// --version output.
func fakeInterpreter(t *testing.T, r *fakeRunner, dir, name string, out scripted) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	r.outputs[path] = out
	return path
}

func posixEnv(t *testing.T, pathDirs ...string) hostenv.Environment {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("exercises POSIX executable bits")
	}
	path := ""
	for i, dir := range pathDirs {
		if i > 0 {
			path += ":"
		}
		path += dir
	}
	return hostenv.Environment{
		Cwd:  t.TempDir(),
		Home: t.TempDir(),
		GOOS: "linux",
		Vars: map[string]string{"PATH": path},
	}
}

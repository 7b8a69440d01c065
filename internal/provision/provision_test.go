package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knlsetup/internal/paths"
	"knlsetup/internal/pyenv"
	"knlsetup/internal/runner"
	"knlsetup/internal/topology"
)

type call struct {
	command string
	args    []string
}

type fakeRunner struct {
	calls []call
	fail  map[string]error
}

func (f *fakeRunner) Run(ctx context.Context, command string, args []string, _ runner.Options) (runner.Result, error) {
	f.calls = append(f.calls, call{command: command, args: args})
	if err := ctx.Err(); err != nil {
		return runner.Result{}, err
	}
	joined := strings.Join(args, " ")
	for needle, err := range f.fail {
		if strings.Contains(joined, needle) {
			return runner.Result{Stderr: []byte("boom: " + needle)}, err
		}
	}
	if len(args) == 3 && args[0] == "-m" && args[1] == "venv" {
		bin := filepath.Join(args[2], "bin")
		if err := os.MkdirAll(bin, 0o755); err != nil {
			return runner.Result{}, err
		}
		if err := os.WriteFile(filepath.Join(bin, "python"), []byte(""), 0o755); err != nil {
			return runner.Result{}, err
		}
	}
	return runner.Result{}, nil
}

func (f *fakeRunner) argsFor(sub string) []string {
	for _, c := range f.calls {
		if strings.Contains(strings.Join(c.args, " "), sub) {
			return c.args
		}
	}
	return nil
}

type fakeReleases struct {
	latest    Release
	latestErr error
	tags      map[string]Release
	calls     int
}

func (f *fakeReleases) Latest(context.Context, string) (Release, error) {
	f.calls++
	return f.latest, f.latestErr
}

func (f *fakeReleases) ByTag(_ context.Context, _ string, tag string) (Release, error) {
	f.calls++
	for _, candidate := range TagCandidates(tag) {
		if r, ok := f.tags[candidate]; ok {
			return r, nil
		}
	}
	return Release{}, ErrReleaseNotFound
}

type fakeGit struct {
	branch    string
	branchErr error
	tags      []string
}

func (f fakeGit) DefaultBranch(context.Context, string) (string, error) {
	return f.branch, f.branchErr
}

func (f fakeGit) ResolveTag(_ context.Context, _ string, version string) (string, error) {
	return matchTag(f.tags, version)
}

func sourceRequest(t *testing.T, src AppSource) Request {
	t.Helper()
	root := filepath.Join(t.TempDir(), "knl")
	return Request{
		Topology: topology.Topology{Scope: topology.MachineLocal, Mode: topology.Source},
		Paths:    paths.ForRoot(root, "linux"),
		Runtime:  pyenv.Candidate{Path: "/usr/bin/python3.12", Version: pyenv.Version{Major: 3, Minor: 12, Patch: 4}, Identity: "CPython"},
		Source:   src,
	}
}

func TestProvisionSourceWithExplicitRef(t *testing.T) {
	r := &fakeRunner{}
	p := &Provisioner{Runner: r, Releases: &fakeReleases{}}
	req := sourceRequest(t, AppSource{Repo: "acme/knl", Ref: "feature/x"})

	rec, err := p.Provision(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "git:acme/knl@feature/x", rec.Provenance)
	assert.Equal(t, "3.12.4", rec.RuntimeVersion)
	assert.Equal(t, req.Paths.VenvEntrypoint("knl"), rec.Entrypoint)
	assert.Equal(t, []string{"-m", "venv", req.Paths.VenvDir}, r.calls[0].args)
	assert.Equal(t, "/usr/bin/python3.12", r.calls[0].command)
	assert.Equal(t, []string{"-m", "pip", "install", "git+https://github.com/acme/knl.git@feature/x"}, r.argsFor("git+"))

	pin, err := os.ReadFile(req.Paths.PinFile)
	require.NoError(t, err)
	assert.Equal(t, "3.12.4\n", string(pin))
	marker, err := os.ReadFile(req.Paths.VersionFile)
	require.NoError(t, err)
	assert.Equal(t, "git:acme/knl@feature/x\n", string(marker))
}

func TestProvisionTwiceIsByteIdentical(t *testing.T) {
	p := &Provisioner{Runner: &fakeRunner{}, Releases: &fakeReleases{latest: Release{Tag: "v0.5.0"}}}
	req := sourceRequest(t, AppSource{Repo: "acme/knl"})

	read := func() [3]string {
		var out [3]string
		for i, path := range []string{req.Paths.PinFile, req.Paths.VersionFile, req.Paths.RecordFile} {
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			out[i] = string(data)
		}
		return out
	}

	_, err := p.Provision(context.Background(), req)
	require.NoError(t, err)
	first := read()

	// Something a user left inside the old environment is replaced, not merged.
	require.NoError(t, os.WriteFile(filepath.Join(req.Paths.VenvDir, "stale"), []byte("x"), 0o644))

	_, err = p.Provision(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, read())
	assert.NoFileExists(t, filepath.Join(req.Paths.VenvDir, "stale"))
	assert.Contains(t, first[1], "git:acme/knl@v0.5.0")
}

func TestProvisionSelfHostedIsEditable(t *testing.T) {
	r := &fakeRunner{}
	releases := &fakeReleases{}
	p := &Provisioner{Runner: r, Releases: releases}
	srcDir := t.TempDir()
	req := sourceRequest(t, AppSource{Repo: "acme/knl", SelfHosted: true, SourceDir: srcDir})

	rec, err := p.Provision(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "editable:"+srcDir, rec.Provenance)
	assert.Equal(t, []string{"-m", "pip", "install", "-e", srcDir}, r.argsFor("-e"))
	assert.Zero(t, releases.calls)
}

func TestProvisionVersionResolvesRemoteTag(t *testing.T) {
	r := &fakeRunner{}
	p := &Provisioner{Runner: r, Releases: &fakeReleases{}, Git: fakeGit{tags: []string{"v0.3.0", "v0.4.0"}}}
	rec, err := p.Provision(context.Background(), sourceRequest(t, AppSource{Repo: "acme/knl", Version: "0.4"}))
	require.NoError(t, err)
	assert.Equal(t, "git:acme/knl@v0.4.0", rec.Provenance)
}

func TestProvisionFallsBackToDefaultBranchWithWarning(t *testing.T) {
	releases := &fakeReleases{latestErr: errors.New("dial tcp: no route to host")}

	t.Run("advertised branch", func(t *testing.T) {
		p := &Provisioner{Runner: &fakeRunner{}, Releases: releases, Git: fakeGit{branch: "trunk"}}
		rec, err := p.Provision(context.Background(), sourceRequest(t, AppSource{Repo: "acme/knl"}))
		require.NoError(t, err)
		assert.Equal(t, "git:acme/knl@trunk", rec.Provenance)
		require.Len(t, rec.Warnings, 1)
		assert.Contains(t, rec.Warnings[0], "trunk branch")
	})

	t.Run("remote unreachable", func(t *testing.T) {
		p := &Provisioner{Runner: &fakeRunner{}, Releases: releases, Git: fakeGit{branchErr: errors.New("offline")}}
		rec, err := p.Provision(context.Background(), sourceRequest(t, AppSource{Repo: "acme/knl"}))
		require.NoError(t, err)
		assert.Equal(t, "git:acme/knl@main", rec.Provenance)
		assert.NotEmpty(t, rec.Warnings)
	})
}

func TestProvisionStageFailures(t *testing.T) {
	tests := []struct {
		needle string
		stage  Stage
	}{
		{"venv", StageVenvCreate},
		{"git+", StageDependencyInstall},
	}
	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			r := &fakeRunner{fail: map[string]error{tt.needle: errors.New("exit status 1")}}
			p := &Provisioner{Runner: r, Releases: &fakeReleases{}}
			req := sourceRequest(t, AppSource{Repo: "acme/knl", Ref: "main"})

			_, err := p.Provision(context.Background(), req)
			var perr *ProvisionError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.stage, perr.Stage)
			assert.NotEmpty(t, perr.Remedy)
			assert.Contains(t, err.Error(), "boom")
			assert.NoFileExists(t, req.Paths.RecordFile)
		})
	}
}

func TestProvisionPipUpgradeFailureIsNotFatal(t *testing.T) {
	r := &fakeRunner{fail: map[string]error{"--upgrade pip": errors.New("exit status 1")}}
	p := &Provisioner{Runner: r, Releases: &fakeReleases{}}
	_, err := p.Provision(context.Background(), sourceRequest(t, AppSource{Repo: "acme/knl", Ref: "main"}))
	require.NoError(t, err)
}

func TestProvisionInterruptedBeforeStart(t *testing.T) {
	r := &fakeRunner{}
	p := &Provisioner{Runner: r, Releases: &fakeReleases{}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := sourceRequest(t, AppSource{Repo: "acme/knl", Ref: "main"})
	_, err := p.Provision(ctx, req)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, r.calls)
	assert.NoDirExists(t, req.Paths.Root)
}

func prebuiltRequest(t *testing.T, src AppSource) Request {
	t.Helper()
	root := filepath.Join(t.TempDir(), "knl")
	return Request{
		Topology: topology.Topology{Scope: topology.MachineLocal, Mode: topology.Prebuilt},
		Paths:    paths.ForRoot(root, "linux"),
		Source:   src,
	}
}

func TestPrebuiltLatestLookupFailureIsDownloadError(t *testing.T) {
	p := &Provisioner{Releases: &fakeReleases{latestErr: errors.New("connection refused")}, GOOS: "linux", GOARCH: "amd64"}
	req := prebuiltRequest(t, AppSource{Repo: "acme/knl"})

	_, err := p.Provision(context.Background(), req)
	require.Error(t, err)
	assert.True(t, IsDownloadError(err))

	var perr *ProvisionError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Remedy, "build knl locally")
	assert.NoFileExists(t, req.Paths.ArtifactFile)
	assert.NoFileExists(t, req.Paths.RecordFile)
}

func TestPrebuiltMissingAssetIsDownloadError(t *testing.T) {
	releases := &fakeReleases{tags: map[string]Release{"v1.0.0": {Tag: "v1.0.0", Assets: []Asset{{Name: "knl-plan9-386"}}}}}
	p := &Provisioner{Releases: releases, GOOS: "linux", GOARCH: "amd64"}

	_, err := p.Provision(context.Background(), prebuiltRequest(t, AppSource{Repo: "acme/knl", Version: "1.0.0"}))
	assert.True(t, IsDownloadError(err))
	assert.Contains(t, err.Error(), "knl-linux-amd64")
}

func TestPrebuiltDownloadsPlatformAsset(t *testing.T) {
	payload := []byte("#!/bin/sh\necho knl\n")
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/acme/knl/releases/latest":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"tag_name": "v0.9.1",
				"assets": []map[string]any{
					{"name": "knl-darwin-arm64", "browser_download_url": server.URL + "/dl/darwin"},
					{"name": "knl-linux-amd64", "browser_download_url": server.URL + "/dl/linux"},
				},
			})
		case "/dl/linux":
			w.Header().Set("Content-Length", fmt.Sprint(len(payload)))
			_, _ = w.Write(payload)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	gh := &GitHubReleases{BaseURL: server.URL, Client: server.Client()}
	var progress strings.Builder
	p := &Provisioner{Releases: gh, HTTP: server.Client(), Progress: &progress, GOOS: "linux", GOARCH: "amd64"}
	req := prebuiltRequest(t, AppSource{Repo: "acme/knl"})

	rec, err := p.Provision(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "artifact:acme/knl@v0.9.1:knl-linux-amd64", rec.Provenance)
	assert.Equal(t, req.Paths.ArtifactFile, rec.Entrypoint)
	assert.Empty(t, rec.RuntimePath)
	assert.NoFileExists(t, req.Paths.PinFile)

	data, err := os.ReadFile(req.Paths.ArtifactFile)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	info, err := os.Stat(req.Paths.ArtifactFile)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o100)
}

func TestPrebuiltCopiesLocalArtifact(t *testing.T) {
	src := filepath.Join(t.TempDir(), "knl-build")
	require.NoError(t, os.WriteFile(src, []byte("binary"), 0o644))
	releases := &fakeReleases{latestErr: errors.New("must not be called")}
	p := &Provisioner{Releases: releases}
	req := prebuiltRequest(t, AppSource{Repo: "acme/knl", ArtifactPath: src})

	rec, err := p.Provision(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "artifact:local:"+src, rec.Provenance)
	assert.Zero(t, releases.calls)

	info, err := os.Stat(req.Paths.ArtifactFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestPrebuiltMissingLocalArtifact(t *testing.T) {
	p := &Provisioner{Releases: &fakeReleases{}}
	_, err := p.Provision(context.Background(), prebuiltRequest(t, AppSource{ArtifactPath: "/no/such/knl"}))
	var perr *ProvisionError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageArtifactCopy, perr.Stage)
	assert.False(t, IsDownloadError(err))
}

func TestLoadRecord(t *testing.T) {
	p := &Provisioner{Runner: &fakeRunner{}, Releases: &fakeReleases{}}
	req := sourceRequest(t, AppSource{Repo: "acme/knl", Ref: "v1"})
	written, err := p.Provision(context.Background(), req)
	require.NoError(t, err)

	loaded, err := LoadRecord(req.Paths)
	require.NoError(t, err)
	written.Warnings = nil
	assert.Equal(t, written, loaded)
	assert.Equal(t, "machine-local", loaded.Scope)
	assert.Equal(t, "source", loaded.Mode)

	_, err = LoadRecord(paths.ForRoot(t.TempDir(), "linux"))
	require.ErrorIs(t, err, ErrNotInstalled)
}

func TestLoadRecordFromProvenanceMarker(t *testing.T) {
	ip := paths.ForRoot(t.TempDir(), "linux")
	require.NoError(t, os.WriteFile(ip.VersionFile, []byte("artifact:local:/tmp/knl\n"), 0o644))

	rec, err := LoadRecord(ip)
	require.NoError(t, err)
	assert.Equal(t, "prebuilt", rec.Mode)
	assert.Equal(t, ip.ArtifactFile, rec.Entrypoint)
	assert.Equal(t, "artifact:local:/tmp/knl", rec.Provenance)
}

func TestSwitchingModesClearsTheOtherModesState(t *testing.T) {
	srcReq := sourceRequest(t, AppSource{Repo: "acme/knl", Ref: "main"})
	p := &Provisioner{Runner: &fakeRunner{}, Releases: &fakeReleases{}}
	_, err := p.Provision(context.Background(), srcReq)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(srcReq.Paths.VenvDir, 0o755))
	require.FileExists(t, srcReq.Paths.PinFile)

	artifact := filepath.Join(t.TempDir(), "knl-build")
	require.NoError(t, os.WriteFile(artifact, []byte("binary"), 0o644))
	preReq := Request{
		Topology: topology.Topology{Scope: topology.MachineLocal, Mode: topology.Prebuilt},
		Paths:    srcReq.Paths,
		Source:   AppSource{Repo: "acme/knl", ArtifactPath: artifact},
	}
	rec, err := p.Provision(context.Background(), preReq)
	require.NoError(t, err)
	assert.Empty(t, rec.RuntimeVersion)
	assert.NoFileExists(t, srcReq.Paths.PinFile)
	assert.NoDirExists(t, srcReq.Paths.VenvDir)
	assert.FileExists(t, srcReq.Paths.ArtifactFile)

	_, err = p.Provision(context.Background(), srcReq)
	require.NoError(t, err)
	assert.NoFileExists(t, srcReq.Paths.ArtifactFile)
	assert.FileExists(t, srcReq.Paths.PinFile)
}

func TestAppSourceCheck(t *testing.T) {
	tests := []struct {
		name string
		src  AppSource
		mode topology.Mode
		ok   bool
	}{
		{"ref in source mode", AppSource{Ref: "main", Version: "v1.0.0"}, topology.Source, true},
		{"artifact in prebuilt mode", AppSource{ArtifactPath: "/tmp/knl"}, topology.Prebuilt, true},
		{"version in prebuilt mode", AppSource{Version: "v1.0.0"}, topology.Prebuilt, true},
		{"artifact in source mode", AppSource{ArtifactPath: "/tmp/knl"}, topology.Source, false},
		{"ref in prebuilt mode", AppSource{Ref: "main"}, topology.Prebuilt, false},
		{"artifact and version", AppSource{ArtifactPath: "/tmp/knl", Version: "v1.0.0"}, topology.Prebuilt, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.src.Check(tt.mode)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrConflictingSource)
		})
	}
}

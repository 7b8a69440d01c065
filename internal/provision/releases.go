package provision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// DefaultGitHubAPI is the REST endpoint release metadata is read from.
const DefaultGitHubAPI = "https://api.github.com"

// ErrReleaseNotFound is returned when a repository has no matching release.
var ErrReleaseNotFound = errors.New("release not found")

type Asset struct {
	Name string `json:"name"`
	URL  string `json:"browser_download_url"`
	Size int64  `json:"size"`
}

type Release struct {
	Tag    string  `json:"tag_name"`
	Assets []Asset `json:"assets"`
}

// ReleaseSource resolves published releases of a repository.
type ReleaseSource interface {
	Latest(ctx context.Context, repo string) (Release, error)
	ByTag(ctx context.Context, repo, tag string) (Release, error)
}

// GitHubReleases reads releases from the GitHub REST API.
type GitHubReleases struct {
	BaseURL   string
	Client    *http.Client
	UserAgent string
}

// NewGitHubReleases returns a client with a bounded request timeout.
func NewGitHubReleases(userAgent string) *GitHubReleases {
	return &GitHubReleases{
		BaseURL:   DefaultGitHubAPI,
		Client:    &http.Client{Timeout: 30 * time.Second},
		UserAgent: userAgent,
	}
}

func (g *GitHubReleases) Latest(ctx context.Context, repo string) (Release, error) {
	return g.fetch(ctx, []string{g.endpoint(repo, "latest")})
}

// ByTag tries the tag as given and with its "v" prefix toggled.
func (g *GitHubReleases) ByTag(ctx context.Context, repo, tag string) (Release, error) {
	var endpoints []string
	for _, candidate := range TagCandidates(tag) {
		endpoints = append(endpoints, g.endpoint(repo, "tags/"+url.PathEscape(candidate)))
	}
	return g.fetch(ctx, endpoints)
}

func (g *GitHubReleases) endpoint(repo, suffix string) string {
	base := strings.TrimRight(g.BaseURL, "/")
	if base == "" {
		base = DefaultGitHubAPI
	}
	return fmt.Sprintf("%s/repos/%s/releases/%s", base, repo, suffix)
}

func (g *GitHubReleases) fetch(ctx context.Context, endpoints []string) (Release, error) {
	client := g.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	var lastErr error
	for _, endpoint := range endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			lastErr = err
			continue
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		if g.UserAgent != "" {
			req.Header.Set("User-Agent", g.UserAgent)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			lastErr = fmt.Errorf("%w at %s", ErrReleaseNotFound, endpoint)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			lastErr = fmt.Errorf("release query failed: %s", resp.Status)
			continue
		}

		var release Release
		if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
			resp.Body.Close()
			lastErr = fmt.Errorf("decode release: %w", err)
			continue
		}
		resp.Body.Close()

		if release.Tag == "" {
			lastErr = fmt.Errorf("release at %s has no tag", endpoint)
			continue
		}
		return release, nil
	}

	if lastErr == nil {
		lastErr = errors.New("release metadata unavailable")
	}
	return Release{}, lastErr
}

// TagCandidates lists the spellings a version may be tagged under, the
// given spelling first.
func TagCandidates(version string) []string {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil
	}
	if strings.HasPrefix(version, "v") {
		return []string{version, strings.TrimPrefix(version, "v")}
	}
	return []string{version, "v" + version}
}

// ValidateVersion checks that a requested release is a semantic version,
// with or without the "v" prefix.
func ValidateVersion(version string) error {
	if _, err := semver.NewVersion(strings.TrimSpace(version)); err != nil {
		return fmt.Errorf("invalid version %q: %w", version, err)
	}
	return nil
}

// SameVersion reports whether two tags name the same semantic version, so
// "v1.2" matches "1.2.0". Non-semver tags must match literally.
func SameVersion(a, b string) bool {
	if a == b {
		return true
	}
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		return false
	}
	return va.Equal(vb)
}

// AssetName is the prebuilt artifact name for a platform.
func AssetName(goos, goarch string) string {
	name := fmt.Sprintf("knl-%s-%s", goos, goarch)
	if goos == "windows" {
		name += ".exe"
	}
	return name
}

// SelectAsset picks the platform asset from a release.
func SelectAsset(release Release, goos, goarch string) (Asset, error) {
	want := AssetName(goos, goarch)
	for _, asset := range release.Assets {
		if asset.Name == want {
			return asset, nil
		}
	}
	return Asset{}, fmt.Errorf("release %s has no %s asset", release.Tag, want)
}

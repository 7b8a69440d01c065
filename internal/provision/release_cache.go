package provision

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// DefaultReleaseCacheTTL bounds how long a latest-release answer is reused.
const DefaultReleaseCacheTTL = time.Hour

type releaseCacheEntry struct {
	Repo      string    `json:"repo"`
	Release   Release   `json:"release"`
	FetchedAt time.Time `json:"fetched_at"`
}

type releaseCache struct {
	Entries map[string]releaseCacheEntry `json:"entries"`
}

// CachedReleases memoises Latest lookups on disk. Tag lookups always hit
// the underlying source.
type CachedReleases struct {
	Source ReleaseSource
	Path   string
	TTL    time.Duration
	Now    func() time.Time
}

func (c *CachedReleases) Latest(ctx context.Context, repo string) (Release, error) {
	if cached, ok := c.cached(repo); ok {
		return cached, nil
	}
	release, err := c.Source.Latest(ctx, repo)
	if err != nil {
		return Release{}, err
	}
	c.store(repo, release)
	return release, nil
}

func (c *CachedReleases) ByTag(ctx context.Context, repo, tag string) (Release, error) {
	return c.Source.ByTag(ctx, repo, tag)
}

func (c *CachedReleases) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *CachedReleases) ttl() time.Duration {
	if c.TTL <= 0 {
		return DefaultReleaseCacheTTL
	}
	return c.TTL
}

func (c *CachedReleases) load() releaseCache {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return releaseCache{Entries: map[string]releaseCacheEntry{}}
	}
	var rc releaseCache
	if err := json.Unmarshal(data, &rc); err != nil {
		return releaseCache{Entries: map[string]releaseCacheEntry{}}
	}
	if rc.Entries == nil {
		rc.Entries = map[string]releaseCacheEntry{}
	}
	return rc
}

func (c *CachedReleases) cached(repo string) (Release, bool) {
	if c.Path == "" {
		return Release{}, false
	}
	entry, ok := c.load().Entries[repo]
	if !ok || c.now().Sub(entry.FetchedAt) > c.ttl() {
		return Release{}, false
	}
	return entry.Release, true
}

// store is best effort; a cache that cannot be written only costs a lookup.
func (c *CachedReleases) store(repo string, release Release) {
	if c.Path == "" {
		return
	}
	rc := c.load()
	rc.Entries[repo] = releaseCacheEntry{Repo: repo, Release: release, FetchedAt: c.now()}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return
	}
	data, err := json.MarshalIndent(rc, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(c.Path, data, 0o644)
}

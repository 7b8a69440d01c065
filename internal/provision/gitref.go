package provision

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

// FallbackBranch is used when the remote does not advertise its HEAD.
const FallbackBranch = "main"

// RefResolver inspects a remote repository without cloning it.
type RefResolver interface {
	DefaultBranch(ctx context.Context, repoURL string) (string, error)
	ResolveTag(ctx context.Context, repoURL, version string) (string, error)
}

// GitRemote lists remote references over the git protocol.
type GitRemote struct{}

func (GitRemote) list(ctx context.Context, repoURL string) ([]*plumbing.Reference, error) {
	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{repoURL},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", repoURL, err)
	}
	return refs, nil
}

// DefaultBranch follows the advertised HEAD symref.
func (g GitRemote) DefaultBranch(ctx context.Context, repoURL string) (string, error) {
	refs, err := g.list(ctx, repoURL)
	if err != nil {
		return "", err
	}
	return defaultBranch(refs)
}

// ResolveTag finds the remote tag naming the same version, preferring an
// exact spelling match.
func (g GitRemote) ResolveTag(ctx context.Context, repoURL, version string) (string, error) {
	refs, err := g.list(ctx, repoURL)
	if err != nil {
		return "", err
	}
	return matchTag(tagNames(refs), version)
}

func defaultBranch(refs []*plumbing.Reference) (string, error) {
	for _, ref := range refs {
		if ref.Name() == plumbing.HEAD && ref.Type() == plumbing.SymbolicReference {
			return ref.Target().Short(), nil
		}
	}
	return "", errors.New("remote does not advertise a default branch")
}

func tagNames(refs []*plumbing.Reference) []string {
	var tags []string
	for _, ref := range refs {
		if ref.Name().IsTag() {
			tags = append(tags, ref.Name().Short())
		}
	}
	sort.Strings(tags)
	return tags
}

func matchTag(tags []string, version string) (string, error) {
	for _, candidate := range TagCandidates(version) {
		for _, tag := range tags {
			if tag == candidate {
				return tag, nil
			}
		}
	}
	for _, tag := range tags {
		if SameVersion(tag, version) {
			return tag, nil
		}
	}
	return "", fmt.Errorf("no tag matching %q", version)
}

// RepoURL is the HTTPS clone URL of a GitHub owner/name.
func RepoURL(repo string) string {
	return "https://github.com/" + strings.TrimSuffix(repo, ".git") + ".git"
}

// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

type (
	// GitFetcher implements Fetcher with go-git. Credentials are discovered
	// once, at construction.
	GitFetcher struct {
		sshAuth  transport.AuthMethod
		httpAuth transport.AuthMethod
	}

	// GitFetcherOptions overrides credential discovery, mainly for tests.
	GitFetcherOptions struct {
		Getenv  func(string) string
		HomeDir func() (string, error)
	}
)

// NewGitFetcher creates a fetcher using SSH keys from ~/.ssh and tokens from
// GITHUB_TOKEN, GITLAB_TOKEN, or GIT_TOKEN.
func NewGitFetcher() *GitFetcher {
	return NewGitFetcherWith(GitFetcherOptions{})
}

// NewGitFetcherWith creates a fetcher with injectable credential lookup.
func NewGitFetcherWith(opts GitFetcherOptions) *GitFetcher {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.HomeDir == nil {
		opts.HomeDir = os.UserHomeDir
	}
	return &GitFetcher{
		sshAuth:  trySSHAuth(opts.HomeDir),
		httpAuth: tryHTTPAuth(opts.Getenv),
	}
}

// Clone clones url into dest and checks out ref. The repository is
// initialised before anything is fetched, so a canceled or timed out clone
// leaves dest in place and calling Clone again resumes the fetch.
func (f *GitFetcher) Clone(ctx context.Context, url, ref, dest string) (string, error) {
	repo, err := git.PlainOpen(dest)
	switch {
	case errors.Is(err, git.ErrRepositoryNotExists):
		if repo, err = git.PlainInit(dest, false); err != nil {
			return "", fmt.Errorf("init %s: %w", dest, err)
		}
		if _, err = repo.CreateRemote(&config.RemoteConfig{Name: git.DefaultRemoteName, URLs: []string{url}}); err != nil {
			return "", fmt.Errorf("add remote %s: %w", url, err)
		}
	case err != nil:
		return "", fmt.Errorf("open %s: %w", dest, err)
	}
	return f.fetch(ctx, repo, ref)
}

// Update fetches from origin and checks out ref again.
func (f *GitFetcher) Update(ctx context.Context, dest, ref string) (string, error) {
	repo, err := git.PlainOpen(dest)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", dest, err)
	}
	return f.fetch(ctx, repo, ref)
}

func (f *GitFetcher) fetch(ctx context.Context, repo *git.Repository, ref string) (string, error) {
	remote, err := repo.Remote(git.DefaultRemoteName)
	if err != nil {
		return "", fmt.Errorf("remote %s: %w", git.DefaultRemoteName, err)
	}
	var auth transport.AuthMethod
	if urls := remote.Config().URLs; len(urls) > 0 {
		auth = f.authFor(urls[0])
	}

	err = remote.FetchContext(ctx, &git.FetchOptions{
		Auth:  auth,
		Tags:  git.AllTags,
		Force: true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return "", err
	}
	if ref == "" {
		trackRemoteHead(ctx, repo, remote, auth)
	}
	return checkout(repo, ref)
}

// trackRemoteHead records the remote default branch as origin/HEAD, which a
// plain fetch does not create. Failure leaves the main/master fallback.
func trackRemoteHead(ctx context.Context, repo *git.Repository, remote *git.Remote, auth transport.AuthMethod) {
	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: auth})
	if err != nil {
		return
	}
	for _, r := range refs {
		if r.Name() != plumbing.HEAD || r.Type() != plumbing.SymbolicReference {
			continue
		}
		head := plumbing.NewSymbolicReference(
			plumbing.NewRemoteHEADReferenceName(git.DefaultRemoteName),
			plumbing.NewRemoteReferenceName(git.DefaultRemoteName, r.Target().Short()),
		)
		if err := repo.Storer.SetReference(head); err != nil {
			slog.Debug("record remote HEAD", "error", err)
		}
		return
	}
}

// Head returns the checked out commit of dest.
func (f *GitFetcher) Head(dest string) (string, error) {
	repo, err := git.PlainOpen(dest)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", err
	}
	return head.Hash().String(), nil
}

// checkout moves the worktree to ref, which may be a branch, a tag, or a
// commit. An empty ref follows the remote default branch.
func checkout(repo *git.Repository, ref string) (string, error) {
	hash, err := resolveRef(repo, ref)
	if err != nil {
		return "", err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return "", fmt.Errorf("failed to checkout %s: %w", hash, err)
	}
	return hash.String(), nil
}

func resolveRef(repo *git.Repository, ref string) (plumbing.Hash, error) {
	if ref == "" {
		for _, name := range []plumbing.ReferenceName{
			plumbing.NewRemoteHEADReferenceName(git.DefaultRemoteName),
			plumbing.NewRemoteReferenceName(git.DefaultRemoteName, "main"),
			plumbing.NewRemoteReferenceName(git.DefaultRemoteName, "master"),
		} {
			if r, err := repo.Reference(name, true); err == nil {
				return r.Hash(), nil
			}
		}
		head, err := repo.Head()
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("failed to get HEAD: %w", err)
		}
		return head.Hash(), nil
	}

	candidates := []plumbing.ReferenceName{
		plumbing.NewRemoteReferenceName(git.DefaultRemoteName, ref),
		plumbing.NewTagReferenceName(ref),
		plumbing.NewBranchReferenceName(ref),
	}
	for _, name := range candidates {
		r, err := repo.Reference(name, true)
		if err != nil {
			continue
		}
		// Annotated tags point at a tag object, not a commit.
		if tag, tErr := repo.TagObject(r.Hash()); tErr == nil {
			return tag.Target, nil
		}
		return r.Hash(), nil
	}

	hash, err := repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("ref %q not found: %w", ref, err)
	}
	return *hash, nil
}

func (f *GitFetcher) authFor(url string) transport.AuthMethod {
	if strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://") {
		return f.sshAuth
	}
	return f.httpAuth
}

func trySSHAuth(homeDir func() (string, error)) transport.AuthMethod {
	home, err := homeDir()
	if err != nil {
		return nil
	}

	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		keyPath := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(keyPath); err != nil {
			continue
		}
		if auth, err := ssh.NewPublicKeysFromFile("git", keyPath, ""); err == nil {
			return auth
		}
	}
	return nil
}

func tryHTTPAuth(getenv func(string) string) transport.AuthMethod {
	tokens := []struct{ env, user string }{
		{"GITHUB_TOKEN", "x-access-token"},
		{"GITLAB_TOKEN", "gitlab-ci-token"},
		{"GIT_TOKEN", "git"},
	}
	for _, t := range tokens {
		if token := getenv(t.env); token != "" {
			return &http.BasicAuth{Username: t.user, Password: token}
		}
	}
	return nil
}

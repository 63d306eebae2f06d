// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/bmadx/bmadx/internal/testutil"
)

func commitFile(t *testing.T, repo *git.Repository, dir, rel, content string) plumbing.Hash {
	t.Helper()
	testutil.MustWriteFile(t, filepath.Join(dir, filepath.FromSlash(rel)), content)

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Add(rel); err != nil {
		t.Fatal(err)
	}
	hash, err := wt.Commit("update "+rel, &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	if err != nil {
		t.Fatal(err)
	}
	return hash
}

func TestGitFetcher_CloneUpdateCheckout(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	repo, err := git.PlainInit(src, false)
	if err != nil {
		t.Fatal(err)
	}
	first := commitFile(t, repo, src, "bmad/core/agents/pm.md", "# pm v1")
	if _, err := repo.CreateTag("v1", first, nil); err != nil {
		t.Fatal(err)
	}

	f := noAuthFetcher()
	dest := filepath.Join(t.TempDir(), "repo")
	ctx := context.Background()

	commit, err := f.Clone(ctx, src, "", dest)
	if err != nil {
		t.Fatalf("Clone() error: %v", err)
	}
	if commit != first.String() {
		t.Errorf("clone commit = %s, want %s", commit, first)
	}
	if head, err := f.Head(dest); err != nil || head != first.String() {
		t.Errorf("Head() = %s, %v", head, err)
	}

	second := commitFile(t, repo, src, "bmad/core/agents/pm.md", "# pm v2")
	commit, err = f.Update(ctx, dest, "")
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if commit != second.String() {
		t.Errorf("update commit = %s, want %s", commit, second)
	}
	data, _ := os.ReadFile(filepath.Join(dest, "bmad", "core", "agents", "pm.md"))
	if string(data) != "# pm v2" {
		t.Errorf("worktree content = %q", data)
	}

	commit, err = f.Update(ctx, dest, "v1")
	if err != nil {
		t.Fatalf("Update(v1) error: %v", err)
	}
	if commit != first.String() {
		t.Errorf("tag checkout = %s, want %s", commit, first)
	}
}

func noAuthFetcher() *GitFetcher {
	return NewGitFetcherWith(GitFetcherOptions{
		Getenv:  func(string) string { return "" },
		HomeDir: func() (string, error) { return "", errors.New("no home") },
	})
}

func TestCache_GitCloneTimeoutKeepsRepository(t *testing.T) {
	t.Parallel()

	spec := testSpec
	spec.Host = "127.0.0.1:1"
	c, err := NewCache(CacheOptions{
		Dir:     t.TempDir(),
		Fetcher: noAuthFetcher(),
		Store:   NewMemoryMetaStore(),
		Policy:  Policy{CloneTimeout: time.Nanosecond},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Ensure(context.Background(), spec, "")
	var cloneErr *CloneFailureError
	if !errors.As(err, &cloneErr) {
		t.Fatalf("error = %v, want CloneFailureError", err)
	}
	if _, statErr := os.Stat(filepath.Join(c.RepoDir(spec.URL()), ".git")); statErr != nil {
		t.Errorf("partial repository should remain for retry: %v", statErr)
	}
}

func TestGitFetcher_CloneResumesPartialRepository(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	repo, err := git.PlainInit(src, false)
	if err != nil {
		t.Fatal(err)
	}
	want := commitFile(t, repo, src, "bmad/core/agents/pm.md", "# pm")

	// An initialised repository with a remote and nothing fetched is what an
	// interrupted clone leaves behind.
	dest := filepath.Join(t.TempDir(), "repo")
	partial, err := git.PlainInit(dest, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := partial.CreateRemote(&config.RemoteConfig{Name: git.DefaultRemoteName, URLs: []string{src}}); err != nil {
		t.Fatal(err)
	}

	f := noAuthFetcher()
	if _, err := f.Head(dest); err == nil {
		t.Fatal("Head() of an unfetched repository should fail")
	}
	commit, err := f.Clone(context.Background(), src, "", dest)
	if err != nil {
		t.Fatalf("Clone() error: %v", err)
	}
	if commit != want.String() {
		t.Errorf("commit = %s, want %s", commit, want)
	}
	if data, _ := os.ReadFile(filepath.Join(dest, "bmad", "core", "agents", "pm.md")); string(data) != "# pm" {
		t.Errorf("worktree content = %q", data)
	}
}

func TestGitFetcher_CanceledCloneKeepsRepository(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := filepath.Join(t.TempDir(), "repo")
	if _, err := noAuthFetcher().Clone(ctx, "https://127.0.0.1:1/o/r.git", "", dest); err == nil {
		t.Fatal("Clone() with a canceled context should fail")
	}
	if _, err := git.PlainOpen(dest); err != nil {
		t.Errorf("canceled clone should leave an openable repository: %v", err)
	}
}

func TestGitFetcher_HeadOfNonRepo(t *testing.T) {
	t.Parallel()

	if _, err := NewGitFetcher().Head(t.TempDir()); err == nil {
		t.Error("Head() of a plain directory should fail")
	}
}

func TestGitFetcher_AuthSelection(t *testing.T) {
	t.Parallel()

	env := map[string]string{"GITLAB_TOKEN": "glt"}
	f := NewGitFetcherWith(GitFetcherOptions{
		Getenv:  func(k string) string { return env[k] },
		HomeDir: func() (string, error) { return t.TempDir(), nil },
	})

	basic, ok := f.authFor("https://gitlab.com/a/b.git").(*http.BasicAuth)
	if !ok || basic.Username != "gitlab-ci-token" || basic.Password != "glt" {
		t.Errorf("https auth = %#v", f.authFor("https://gitlab.com/a/b.git"))
	}
	if f.authFor("git@gitlab.com:a/b.git") != nil {
		t.Error("ssh URL without keys should have no auth")
	}
}

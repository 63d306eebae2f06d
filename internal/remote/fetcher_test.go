// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const fakeMarker = ".fake-head"

// fakeFetcher materializes a fixed tree instead of talking to git. A clone
// is "usable" once its marker file holds a commit.
type fakeFetcher struct {
	mu      sync.Mutex
	clones  int
	updates int

	files  map[string]string
	commit string

	gate      chan struct{}
	hang      bool
	updateErr error
}

func newFakeFetcher(files map[string]string) *fakeFetcher {
	return &fakeFetcher{files: files, commit: "c0ffee1"}
}

func (f *fakeFetcher) Clone(ctx context.Context, _, _, dest string) (string, error) {
	f.mu.Lock()
	f.clones++
	gate, hang, commit := f.gate, f.hang, f.commit
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if hang {
		if err := os.MkdirAll(filepath.Join(dest, "partial"), 0o755); err != nil {
			return "", err
		}
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err := writeFiles(dest, f.files); err != nil {
		return "", err
	}
	return commit, os.WriteFile(filepath.Join(dest, fakeMarker), []byte(commit), 0o644)
}

func (f *fakeFetcher) Update(_ context.Context, dest, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return "", f.updateErr
	}
	return f.commit, os.WriteFile(filepath.Join(dest, fakeMarker), []byte(f.commit), 0o644)
}

func (f *fakeFetcher) Head(dest string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dest, fakeMarker))
	if err != nil {
		return "", errors.New("not a repository")
	}
	return strings.TrimSpace(string(data)), nil
}

func (f *fakeFetcher) counts() (clones, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clones, f.updates
}

func (f *fakeFetcher) setCommit(c string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commit = c
}

func writeFiles(root string, files map[string]string) error {
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return err
		}
	}
	return nil
}

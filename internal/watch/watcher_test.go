// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bmadx/bmadx/internal/location"
	"github.com/bmadx/bmadx/internal/manifest"
	"github.com/bmadx/bmadx/internal/testutil"
)

const testDebounce = 80 * time.Millisecond

type fakeReloader struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (f *fakeReloader) Reload(context.Context) (*manifest.Set, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &manifest.Set{}, nil
}

func (f *fakeReloader) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// start runs w in the background and stops it when the test ends.
func start(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-errCh; err != nil {
			t.Errorf("Run() error: %v", err)
		}
	})
}

func waitFor(t *testing.T, ch <-chan []string) []string {
	t.Helper()
	select {
	case changed := <-ch:
		return changed
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
		return nil
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	r := &fakeReloader{}
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"valid", Config{Root: "/tmp", Reloader: r}, nil},
		{"custom patterns", Config{Root: "/tmp", Reloader: r, Patterns: []string{"**/*.md"}, Ignore: []string{"docs/**"}}, nil},
		{"no root", Config{Reloader: r}, ErrNoRoot},
		{"no reloader", Config{Root: "/tmp"}, ErrNoReloader},
		{"bad pattern", Config{Root: "/tmp", Reloader: r, Patterns: []string{"[unclosed"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			switch {
			case tt.name == "bad pattern":
				if err == nil {
					t.Error("Validate() accepted an invalid pattern")
				}
			case tt.wantErr == nil && err != nil:
				t.Errorf("Validate() error: %v", err)
			case tt.wantErr != nil && !errors.Is(err, tt.wantErr):
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWatcher_ReloadsReconciler(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{"core/agents/a.md": "# a"})
	rec := manifest.NewReconciler(location.Location{
		Kind:         location.KindProject,
		ResolvedRoot: root,
		Status:       location.StatusValid,
	})
	if _, err := rec.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan []string, 4)
	w, err := New(Config{
		Root:     root,
		Debounce: testDebounce,
		Reloader: rec,
		OnReload: func(_ *manifest.Set, changed []string) { reloaded <- changed },
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	start(t, w)

	testutil.MustWriteFile(t, filepath.Join(root, "core", "agents", "b.md"), "# b")
	changed := waitFor(t, reloaded)
	if !slices.Contains(changed, "core/agents/b.md") {
		t.Errorf("changed = %v, want core/agents/b.md", changed)
	}
	if n := len(rec.Current().Agents); n != 2 {
		t.Errorf("agents after reload = %d, want 2", n)
	}
}

func TestWatcher_Debounce(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	r := &fakeReloader{}
	reloaded := make(chan []string, 4)
	w, err := New(Config{
		Root:     root,
		Debounce: 200 * time.Millisecond,
		Reloader: r,
		OnReload: func(_ *manifest.Set, changed []string) { reloaded <- changed },
	})
	if err != nil {
		t.Fatal(err)
	}
	start(t, w)

	for _, name := range []string{"a.md", "b.yaml", "c.csv"} {
		testutil.MustWriteFile(t, filepath.Join(root, name), "x")
		time.Sleep(10 * time.Millisecond)
	}

	changed := waitFor(t, reloaded)
	time.Sleep(300 * time.Millisecond)

	if got := r.count(); got != 1 {
		t.Errorf("reloads = %d, want 1", got)
	}
	for _, want := range []string{"a.md", "b.yaml", "c.csv"} {
		if !slices.Contains(changed, want) {
			t.Errorf("changed = %v, missing %s", changed, want)
		}
	}
}

func TestWatcher_IgnoresIrrelevantFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	testutil.MustMkdirAll(t, filepath.Join(root, ".git"))
	r := &fakeReloader{}
	reloaded := make(chan []string, 4)
	w, err := New(Config{
		Root:     root,
		Debounce: testDebounce,
		Reloader: r,
		Ignore:   []string{"drafts/**"},
		OnReload: func(_ *manifest.Set, changed []string) { reloaded <- changed },
	})
	if err != nil {
		t.Fatal(err)
	}
	start(t, w)

	testutil.MustWriteFile(t, filepath.Join(root, "notes.txt"), "x")
	testutil.MustWriteFile(t, filepath.Join(root, ".git", "HEAD.md"), "x")
	time.Sleep(4 * testDebounce)
	if got := r.count(); got != 0 {
		t.Fatalf("irrelevant files caused %d reloads", got)
	}

	testutil.MustWriteFile(t, filepath.Join(root, "agent.md"), "x")
	if changed := waitFor(t, reloaded); !slices.Equal(changed, []string{"agent.md"}) {
		t.Errorf("changed = %v, want [agent.md]", changed)
	}
}

func TestWatcher_ReloadErrorKeepsWatching(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	r := &fakeReloader{errs: []error{errors.New("manifest locked")}}
	reloaded := make(chan []string, 4)
	w, err := New(Config{
		Root:     root,
		Debounce: testDebounce,
		Reloader: r,
		OnReload: func(_ *manifest.Set, changed []string) { reloaded <- changed },
	})
	if err != nil {
		t.Fatal(err)
	}
	start(t, w)

	testutil.MustWriteFile(t, filepath.Join(root, "first.md"), "x")
	time.Sleep(4 * testDebounce)
	testutil.MustWriteFile(t, filepath.Join(root, "second.md"), "x")

	changed := waitFor(t, reloaded)
	if !slices.Contains(changed, "second.md") {
		t.Errorf("changed = %v", changed)
	}
	if got := r.count(); got < 2 {
		t.Errorf("reloads = %d, want at least 2", got)
	}
}

func TestWatcher_NewDirectoriesAreWatched(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	r := &fakeReloader{}
	reloaded := make(chan []string, 8)
	w, err := New(Config{
		Root:     root,
		Debounce: testDebounce,
		Reloader: r,
		OnReload: func(_ *manifest.Set, changed []string) { reloaded <- changed },
	})
	if err != nil {
		t.Fatal(err)
	}
	start(t, w)

	if err := os.MkdirAll(filepath.Join(root, "cis", "agents"), 0o755); err != nil {
		t.Fatal(err)
	}
	waitFor(t, reloaded)

	testutil.MustWriteFile(t, filepath.Join(root, "cis", "agents", "muse.md"), "x")
	deadline := time.After(5 * time.Second)
	for {
		select {
		case changed := <-reloaded:
			if slices.Contains(changed, "cis/agents/muse.md") {
				return
			}
		case <-deadline:
			t.Fatal("write inside a new directory never triggered a reload")
		}
	}
}

func TestWatcher_RunTwice(t *testing.T) {
	t.Parallel()

	w, err := New(Config{Root: t.TempDir(), Reloader: &fakeReloader{}})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	if err := w.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() = %v, want ErrAlreadyRunning", err)
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	for _, rel := range []string{"bmm/agents/pm.md", "bmm/workflows/x/workflow.yaml", "_cfg/agent-manifest.csv", "core/tasks/t.xml"} {
		if !matchAny(DefaultPatterns(), rel) {
			t.Errorf("%s should match the default patterns", rel)
		}
	}
	for _, rel := range []string{".git/config", "x/node_modules/y.md", "a.md.swp"} {
		if !matchAny(DefaultIgnores(), rel) {
			t.Errorf("%s should be ignored", rel)
		}
	}
	patterns := DefaultPatterns()
	patterns[0] = "mutated"
	if DefaultPatterns()[0] == "mutated" {
		t.Error("DefaultPatterns() must return a copy")
	}
}

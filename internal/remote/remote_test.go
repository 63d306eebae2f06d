// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bmadx/bmadx/internal/fuzzy"
	"github.com/bmadx/bmadx/internal/testutil"
)

var testSpec = SourceSpec{
	Alias:       "acme",
	Protocol:    ProtocolHTTPS,
	Host:        "example.com",
	Org:         "acme",
	Repo:        "agents",
	Ref:         "main",
	BaseSubpath: "bmad",
}

var testTree = map[string]string{
	"bmad/core/agents/debug.md":       "---\ntitle: Debugger\n---\n# debug",
	"bmad/core/agents/deploy.md":      "# deploy",
	"bmad/core/agents/debt.md":        "# debt",
	"bmad/bmm/agents/pm.md":           "# pm",
	"bmad/bmm/agents/pm.customize.md": "skip",
	"other/agents/outside.md":         "# outside",
}

func newTestCache(t *testing.T, f Fetcher, clock Clock, policy Policy) *Cache {
	t.Helper()
	c, err := NewCache(CacheOptions{
		Dir:     t.TempDir(),
		Fetcher: f,
		Store:   NewMemoryMetaStore(),
		Clock:   clock,
		Policy:  policy,
	})
	if err != nil {
		t.Fatalf("NewCache() error: %v", err)
	}
	return c
}

func TestParseRef(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Ref
		wantErr bool
	}{
		{"@acme:core/pm", Ref{Alias: "acme", Subpath: "core/pm"}, false},
		{"@a1-b:/pm/", Ref{Alias: "a1-b", Subpath: "pm"}, false},
		{"acme:pm", Ref{}, true},
		{"@acme", Ref{}, true},
		{"@:pm", Ref{}, true},
		{"@acme:", Ref{}, true},
		{"@Acme:pm", Ref{}, true},
		{"@1acme:pm", Ref{}, true},
		{"@acme:../secrets", Ref{}, true},
		{"@acme:core/../../x", Ref{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseRef(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedRef) {
					t.Fatalf("ParseRef(%q) error = %v, want ErrMalformedRef", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRef(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseRef(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	ssh := testSpec
	ssh.Alias = "private"
	ssh.Protocol = ProtocolSSH

	reg, err := NewRegistry(testSpec, ssh, SourceSpec{Alias: "Bad"})
	if !errors.Is(err, ErrInvalidSourceSpec) {
		t.Errorf("NewRegistry() error = %v, want ErrInvalidSourceSpec", err)
	}

	got, err := reg.Lookup("acme")
	if err != nil {
		t.Fatal(err)
	}
	if got.URL() != "https://example.com/acme/agents.git" {
		t.Errorf("https URL = %s", got.URL())
	}
	priv, _ := reg.Lookup("private")
	if priv.URL() != "git@example.com:acme/agents.git" {
		t.Errorf("ssh URL = %s", priv.URL())
	}

	_, err = reg.Lookup("nope")
	var unknown *AliasUnknownError
	if !errors.As(err, &unknown) || !errors.Is(err, ErrAliasUnknown) {
		t.Fatalf("error = %v, want AliasUnknownError", err)
	}
	if len(unknown.Known) != 2 || unknown.Known[0] != "acme" {
		t.Errorf("known aliases = %v", unknown.Known)
	}
}

func TestKey(t *testing.T) {
	t.Parallel()

	k := Key(testSpec.URL())
	if len(k) != KeyLength || k != Key(testSpec.URL()) {
		t.Errorf("Key() = %q, want stable %d hex chars", k, KeyLength)
	}
	if k == Key("https://example.com/other/repo.git") {
		t.Error("different URLs must not share a key")
	}
}

func TestCache_SingleFetchUnderConcurrency(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(testTree)
	f.gate = make(chan struct{})
	c := newTestCache(t, f, nil, Policy{})

	const callers = 16
	var wg sync.WaitGroup
	entries := make([]CacheEntry, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entries[i], errs[i] = c.Ensure(context.Background(), testSpec, "core/debug")
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if entries[i].CurrentCommit != "c0ffee1" || entries[i].LocalCacheDir != c.RepoDir(testSpec.URL()) {
			t.Errorf("caller %d got %+v", i, entries[i])
		}
	}
	if clones, _ := f.counts(); clones != 1 {
		t.Errorf("clone calls = %d, want 1", clones)
	}
	if n, _ := c.Len(); n != 1 {
		t.Errorf("Len() = %d, want 1", n)
	}
}

func TestCache_RefetchAfterMaxAge(t *testing.T) {
	t.Parallel()

	clock := testutil.NewFakeClock(time.Time{})
	f := newFakeFetcher(testTree)
	c := newTestCache(t, f, clock, Policy{MaxAge: time.Hour})
	ctx := context.Background()

	if _, err := c.Ensure(ctx, testSpec, ""); err != nil {
		t.Fatal(err)
	}
	clock.Advance(30 * time.Minute)
	if _, err := c.Ensure(ctx, testSpec, ""); err != nil {
		t.Fatal(err)
	}
	if _, updates := f.counts(); updates != 0 {
		t.Fatalf("fresh entry re-fetched %d times", updates)
	}

	clock.Advance(time.Hour)
	f.setCommit("beef002")
	entry, err := c.Ensure(ctx, testSpec, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, updates := f.counts(); updates != 1 {
		t.Errorf("updates = %d, want 1", updates)
	}
	if entry.CurrentCommit != "beef002" || !entry.LastFetchTime.Equal(clock.Now()) {
		t.Errorf("entry not refreshed: %+v", entry)
	}
}

func TestCache_FetchFailureServesExistingClone(t *testing.T) {
	t.Parallel()

	clock := testutil.NewFakeClock(time.Time{})
	f := newFakeFetcher(testTree)
	c := newTestCache(t, f, clock, Policy{MaxAge: time.Minute})
	ctx := context.Background()

	first, err := c.Ensure(ctx, testSpec, "")
	if err != nil {
		t.Fatal(err)
	}
	f.updateErr = errors.New("network down")
	clock.Advance(time.Hour)

	again, err := c.Ensure(ctx, testSpec, "")
	if err != nil {
		t.Fatalf("Ensure() should fall back to the clone, got %v", err)
	}
	if again.CurrentCommit != first.CurrentCommit {
		t.Errorf("commit changed on failed fetch: %s -> %s", first.CurrentCommit, again.CurrentCommit)
	}
}

func TestCache_EnsureRecordsSubpath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewFileMetaStore(dir)
	c, err := NewCache(CacheOptions{Dir: dir, Fetcher: newFakeFetcher(testTree), Store: store})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	key := Key(testSpec.URL())

	for _, subpath := range []string{"core/agents", "bmm/agents"} {
		entry, err := c.Ensure(ctx, testSpec, subpath)
		if err != nil {
			t.Fatalf("Ensure(%q) error: %v", subpath, err)
		}
		if entry.Subpath != subpath {
			t.Errorf("Ensure(%q).Subpath = %q", subpath, entry.Subpath)
		}
		saved, ok, err := store.Load(key)
		if err != nil || !ok {
			t.Fatalf("Load() = %v, %v", ok, err)
		}
		if saved.Subpath != subpath {
			t.Errorf("meta.yaml Subpath = %q after Ensure(%q)", saved.Subpath, subpath)
		}
	}
}

func TestCache_CloneTimeoutKeepsPartialDir(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(testTree)
	f.hang = true
	c := newTestCache(t, f, nil, Policy{CloneTimeout: 10 * time.Millisecond})

	_, err := c.Ensure(context.Background(), testSpec, "")
	var cloneErr *CloneFailureError
	if !errors.As(err, &cloneErr) {
		t.Fatalf("error = %v, want CloneFailureError", err)
	}
	if !errors.Is(err, ErrCloneFailure) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error should wrap ErrCloneFailure and the deadline: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(cloneErr.Dir, "partial")); statErr != nil {
		t.Errorf("partial directory should remain: %v", statErr)
	}

	f.mu.Lock()
	f.hang = false
	f.mu.Unlock()
	entry, err := c.Ensure(context.Background(), testSpec, "")
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if entry.LocalCacheDir != cloneErr.Dir {
		t.Errorf("retry cloned into %s, want the partial dir %s", entry.LocalCacheDir, cloneErr.Dir)
	}
	if _, statErr := os.Stat(filepath.Join(entry.LocalCacheDir, "partial")); statErr != nil {
		t.Errorf("retry should resume into the partial clone, not remove it: %v", statErr)
	}
	if clones, _ := f.counts(); clones != 2 {
		t.Errorf("clones = %d, want 2", clones)
	}
}

func TestFileMetaStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewFileMetaStore(dir)
	entry := CacheEntry{
		SourceURL:     testSpec.URL(),
		ContentHash:   Key(testSpec.URL()),
		Ref:           "main",
		LastFetchTime: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		CurrentCommit: "abc",
		LocalCacheDir: filepath.Join(dir, Key(testSpec.URL()), "repo"),
	}
	if err := store.Save(entry); err != nil {
		t.Fatal(err)
	}
	testutil.MustWriteFile(t, filepath.Join(dir, "garbage", metaFileName), "{not yaml: [")

	got, ok, err := store.Load(entry.ContentHash)
	if err != nil || !ok {
		t.Fatalf("Load() = %v, %v", ok, err)
	}
	if !got.LastFetchTime.Equal(entry.LastFetchTime) || got.CurrentCommit != "abc" || got.SourceURL != entry.SourceURL {
		t.Errorf("Load() = %+v, want %+v", got, entry)
	}

	list, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("List() = %d entries, want 1 (unreadable skipped)", len(list))
	}
	if _, ok, _ := store.Load("missing"); ok {
		t.Error("Load(missing) reported found")
	}
}

func TestCache_CatalogMemoizedPerCommit(t *testing.T) {
	t.Parallel()

	f := newFakeFetcher(testTree)
	c := newTestCache(t, f, nil, Policy{})
	entry, err := c.Ensure(context.Background(), testSpec, "")
	if err != nil {
		t.Fatal(err)
	}

	records, err := c.Catalog(entry)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 5 {
		t.Fatalf("catalog has %d records, want 5: %+v", len(records), records)
	}
	for _, r := range records {
		if r.Name == "debug" && (r.ModuleName != "core" || r.DisplayName != "Debugger") {
			t.Errorf("debug record = %+v", r)
		}
	}

	if _, err := c.Catalog(entry); err != nil {
		t.Fatal(err)
	}
	if c.CatalogLen() != 1 {
		t.Errorf("CatalogLen() = %d, want 1", c.CatalogLen())
	}
	entry.CurrentCommit = "next"
	if _, err := c.Catalog(entry); err != nil {
		t.Fatal(err)
	}
	if c.CatalogLen() != 2 {
		t.Errorf("new commit should add a catalog, CatalogLen() = %d", c.CatalogLen())
	}
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	reg, err := NewRegistry(testSpec)
	if err != nil {
		t.Fatal(err)
	}
	r := NewResolver(reg, newTestCache(t, newFakeFetcher(testTree), nil, Policy{}))
	ctx := context.Background()

	t.Run("direct", func(t *testing.T) {
		res, err := r.Resolve(ctx, "@acme:bmm/agents/pm")
		if err != nil {
			t.Fatal(err)
		}
		if res.Content != "# pm" || res.Corrected || res.Record.ModuleName != "bmm" {
			t.Errorf("res = %+v", res)
		}
	})

	t.Run("corrected", func(t *testing.T) {
		res, err := r.Resolve(ctx, "@acme:debugg")
		if err != nil {
			t.Fatal(err)
		}
		if !res.Corrected || res.Record.Name != "debug" {
			t.Errorf("res = %+v", res)
		}
	})

	t.Run("ambiguous", func(t *testing.T) {
		_, err := r.Resolve(ctx, "@acme:de")
		var amb *fuzzy.AmbiguousMatchError
		if !errors.As(err, &amb) {
			t.Fatalf("error = %v, want AmbiguousMatchError", err)
		}
		if amb.Hint != "bmadx remote list @acme" {
			t.Errorf("hint = %q", amb.Hint)
		}
	})

	t.Run("outside base is not visible", func(t *testing.T) {
		_, err := r.Resolve(ctx, "@acme:outside")
		if !errors.Is(err, fuzzy.ErrNoMatch) && !errors.Is(err, fuzzy.ErrAmbiguousMatch) {
			t.Errorf("error = %v, want no match", err)
		}
	})

	t.Run("unknown alias", func(t *testing.T) {
		if _, err := r.Resolve(ctx, "@other:pm"); !errors.Is(err, ErrAliasUnknown) {
			t.Errorf("error = %v", err)
		}
	})

	t.Run("list", func(t *testing.T) {
		recs, err := r.List(ctx, "acme")
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 4 {
			t.Errorf("List() = %d records, want 4", len(recs))
		}
	})
}

func TestResolver_NoCandidates(t *testing.T) {
	t.Parallel()

	reg, _ := NewRegistry(testSpec)
	r := NewResolver(reg, newTestCache(t, newFakeFetcher(map[string]string{"README.md": "x"}), nil, Policy{}))

	_, err := r.Resolve(context.Background(), "@acme:pm")
	var none *fuzzy.NoCandidatesError
	if !errors.As(err, &none) || none.Source != "@acme" {
		t.Errorf("error = %v, want NoCandidatesError for @acme", err)
	}
}

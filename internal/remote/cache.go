// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const (
	// KeyLength is the number of hex characters of the URL hash used as
	// the cache key.
	KeyLength = 16

	// DefaultCatalogSize is the number of per-commit catalogs kept in memory.
	DefaultCatalogSize = 64

	repoDirName = "repo"
)

var (
	// ErrCloneFailure is the sentinel wrapped by CloneFailureError.
	ErrCloneFailure = errors.New("remote clone failed")
	// ErrNoCacheDir is returned when a Cache is created without a directory.
	ErrNoCacheDir = errors.New("cache directory is required")
)

type (
	// Fetcher performs the git operations the cache needs.
	Fetcher interface {
		// Clone clones url into dest and checks out ref. It returns the
		// checked out commit. A failed clone must leave dest in place, and
		// Clone on such a dest resumes it.
		Clone(ctx context.Context, url, ref, dest string) (string, error)
		// Update fetches into an existing clone and checks out ref again.
		Update(ctx context.Context, dest, ref string) (string, error)
		// Head returns the commit of an existing clone, or an error if dest
		// is not a usable repository.
		Head(dest string) (string, error)
	}

	// MetaStore persists cache entry metadata.
	MetaStore interface {
		Load(key string) (CacheEntry, bool, error)
		Save(entry CacheEntry) error
		List() ([]CacheEntry, error)
	}

	// Clock abstracts time for freshness checks.
	Clock interface {
		Now() time.Time
	}

	// Policy controls re-fetching and clone bounds.
	Policy struct {
		// MaxAge is how long a clone is served without a fetch. Zero means
		// never re-fetch.
		MaxAge time.Duration
		// CloneTimeout bounds an initial clone. Zero means unbounded.
		CloneTimeout time.Duration
	}

	// CacheEntry describes one cached repository.
	CacheEntry struct {
		SourceURL     string    `yaml:"source_url"`
		ContentHash   string    `yaml:"content_hash"`
		Ref           string    `yaml:"ref,omitempty"`
		Subpath       string    `yaml:"subpath,omitempty"`
		LastFetchTime time.Time `yaml:"last_fetch_time"`
		CurrentCommit string    `yaml:"current_commit"`
		LocalCacheDir string    `yaml:"local_cache_dir"`
	}

	// CacheOptions configures NewCache. Nil collaborators get defaults.
	CacheOptions struct {
		Dir         string
		Fetcher     Fetcher
		Store       MetaStore
		Clock       Clock
		Policy      Policy
		CatalogSize int
	}

	// Cache is the content-addressable clone cache. All mutation is
	// confined to Dir.
	Cache struct {
		dir      string
		fetcher  Fetcher
		store    MetaStore
		clock    Clock
		policy   Policy
		group    singleflight.Group
		catalogs *lru.Cache[string, []CatalogRecord]
		saveMu   sync.Mutex
	}

	// CloneFailureError is returned when a clone fails or times out. The
	// partial directory is left in place and resumed on the next attempt.
	CloneFailureError struct {
		URL   string
		Dir   string
		Cause error
	}

	systemClock struct{}
)

func (systemClock) Now() time.Time { return time.Now() }

func (e *CloneFailureError) Error() string {
	return fmt.Sprintf("clone %s into %s: %v", e.URL, e.Dir, e.Cause)
}

// Unwrap exposes the sentinel and the cause, so context.DeadlineExceeded
// remains detectable.
func (e *CloneFailureError) Unwrap() []error { return []error{ErrCloneFailure, e.Cause} }

// Key returns the cache key of a repository URL.
func Key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:KeyLength]
}

// NewCache creates a Cache rooted at opts.Dir.
func NewCache(opts CacheOptions) (*Cache, error) {
	if opts.Dir == "" {
		return nil, ErrNoCacheDir
	}
	if opts.Fetcher == nil {
		opts.Fetcher = NewGitFetcher()
	}
	if opts.Store == nil {
		opts.Store = NewFileMetaStore(opts.Dir)
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.CatalogSize <= 0 {
		opts.CatalogSize = DefaultCatalogSize
	}

	catalogs, err := lru.New[string, []CatalogRecord](opts.CatalogSize)
	if err != nil {
		return nil, fmt.Errorf("create catalog cache: %w", err)
	}

	return &Cache{
		dir:      opts.Dir,
		fetcher:  opts.Fetcher,
		store:    opts.Store,
		clock:    opts.Clock,
		policy:   opts.Policy,
		catalogs: catalogs,
	}, nil
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.dir }

// RepoDir returns where the clone for url lives.
func (c *Cache) RepoDir(url string) string {
	return filepath.Join(c.dir, Key(url), repoDirName)
}

// Ensure makes the repository of spec available locally and returns its
// entry. Concurrent calls for the same repository share one clone or fetch.
func (c *Cache) Ensure(ctx context.Context, spec SourceSpec, subpath string) (CacheEntry, error) {
	url := spec.URL()
	key := Key(url)

	v, err, shared := c.group.Do(key, func() (any, error) {
		return c.ensure(ctx, url, key, spec.Ref, subpath)
	})
	if err != nil {
		return CacheEntry{}, err
	}
	if shared {
		fetchesTotal.WithLabelValues("shared").Inc()
	}

	entry := v.(CacheEntry) //nolint:forcetypeassert // ensure always returns a CacheEntry
	if entry.Subpath != subpath {
		// A caller that joined another caller's fetch asked for a different
		// subpath; the metadata records the latest request.
		entry.Subpath = subpath
		c.save(entry)
	}
	return entry, nil
}

func (c *Cache) ensure(ctx context.Context, url, key, ref, subpath string) (CacheEntry, error) {
	repoDir := filepath.Join(c.dir, key, repoDirName)

	entry, found, err := c.store.Load(key)
	if err != nil {
		slog.Warn("cache metadata unreadable, rebuilding", "key", key, "error", err)
		found = false
	}

	if _, statErr := os.Stat(repoDir); statErr == nil {
		head, headErr := c.fetcher.Head(repoDir)
		if headErr == nil {
			if !found || entry.SourceURL != url || entry.Ref != ref {
				entry = CacheEntry{SourceURL: url, ContentHash: key, Ref: ref, Subpath: subpath, CurrentCommit: head, LocalCacheDir: repoDir}
				return c.refresh(ctx, entry, true)
			}
			entry.CurrentCommit = head
			entry.LocalCacheDir = repoDir
			if entry.Subpath != subpath {
				entry.Subpath = subpath
				c.save(entry)
			}
			return c.refresh(ctx, entry, c.stale(entry))
		}

		slog.Info("resuming partial clone", "dir", repoDir, "reason", headErr)
	}

	return c.clone(ctx, url, key, ref, subpath, repoDir)
}

func (c *Cache) clone(ctx context.Context, url, key, ref, subpath, repoDir string) (CacheEntry, error) {
	if err := os.MkdirAll(filepath.Dir(repoDir), 0o755); err != nil {
		return CacheEntry{}, &CloneFailureError{URL: url, Dir: repoDir, Cause: err}
	}

	cloneCtx := ctx
	if c.policy.CloneTimeout > 0 {
		var cancel context.CancelFunc
		cloneCtx, cancel = context.WithTimeout(ctx, c.policy.CloneTimeout)
		defer cancel()
	}

	slog.Debug("cloning remote source", "url", url, "ref", ref, "dir", repoDir)
	commit, err := c.fetcher.Clone(cloneCtx, url, ref, repoDir)
	if err != nil {
		fetchesTotal.WithLabelValues("clone_failed").Inc()
		return CacheEntry{}, &CloneFailureError{URL: url, Dir: repoDir, Cause: err}
	}
	fetchesTotal.WithLabelValues("clone").Inc()

	entry := CacheEntry{
		SourceURL:     url,
		ContentHash:   key,
		Ref:           ref,
		Subpath:       subpath,
		LastFetchTime: c.clock.Now(),
		CurrentCommit: commit,
		LocalCacheDir: repoDir,
	}
	c.save(entry)
	return entry, nil
}

// refresh re-fetches when fetch is set. A failed fetch keeps serving the
// existing clone.
func (c *Cache) refresh(ctx context.Context, entry CacheEntry, fetch bool) (CacheEntry, error) {
	if !fetch {
		fetchesTotal.WithLabelValues("reuse").Inc()
		return entry, nil
	}

	commit, err := c.fetcher.Update(ctx, entry.LocalCacheDir, entry.Ref)
	if err != nil {
		fetchesTotal.WithLabelValues("fetch_failed").Inc()
		slog.Warn("remote fetch failed, serving cached clone", "url", entry.SourceURL, "commit", entry.CurrentCommit, "error", err)
		return entry, nil
	}
	fetchesTotal.WithLabelValues("fetch").Inc()

	entry.CurrentCommit = commit
	entry.LastFetchTime = c.clock.Now()
	c.save(entry)
	return entry, nil
}

func (c *Cache) stale(entry CacheEntry) bool {
	if c.policy.MaxAge <= 0 {
		return false
	}
	return c.clock.Now().Sub(entry.LastFetchTime) > c.policy.MaxAge
}

func (c *Cache) save(entry CacheEntry) {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	if err := c.store.Save(entry); err != nil {
		slog.Warn("failed to persist cache metadata", "key", entry.ContentHash, "error", err)
	}
}

// Len returns the number of cached repositories.
func (c *Cache) Len() (int, error) {
	entries, err := c.store.List()
	return len(entries), err
}

// Entries returns every cached repository, sorted by key. Eviction is left
// to the caller.
func (c *Cache) Entries() ([]CacheEntry, error) {
	entries, err := c.store.List()
	if err != nil {
		return nil, err
	}
	slices.SortFunc(entries, func(a, b CacheEntry) int {
		return strings.Compare(a.ContentHash, b.ContentHash)
	})
	return entries, nil
}

// CatalogLen returns the number of catalogs held in memory.
func (c *Cache) CatalogLen() int { return c.catalogs.Len() }

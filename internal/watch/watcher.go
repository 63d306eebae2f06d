// SPDX-License-Identifier: MPL-2.0

// Package watch reloads a reconciler when files under an installation root
// change.
//
// Events are debounced: a burst of writes (an installer copying a module, an
// editor saving through a temp file) produces one reload carrying every
// changed path.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/bmadx/bmadx/internal/manifest"
)

// DefaultDebounce is the quiet period before a reload.
const DefaultDebounce = 300 * time.Millisecond

var (
	// ErrNoRoot is returned when Config.Root is empty.
	ErrNoRoot = errors.New("watch: root directory is required")
	// ErrNoReloader is returned when Config.Reloader is nil.
	ErrNoReloader = errors.New("watch: reloader is required")
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("watch: Run called more than once")

	// defaultPatterns select the files whose change can alter a reconciled
	// set: agent and task markdown, workflow and module YAML, manifests,
	// and XML tasks.
	defaultPatterns = []string{"**/*.md", "**/*.yaml", "**/*.csv", "**/*.xml"}

	defaultIgnores = []string{
		"**/.git/**",
		"**/node_modules/**",
		"**/*.swp",
		"**/*.swo",
		"**/*~",
		"**/.DS_Store",
	}
)

type (
	// Reloader rebuilds and publishes a reconciled set.
	Reloader interface {
		Reload(ctx context.Context) (*manifest.Set, error)
	}

	// Config holds the parameters for a Watcher.
	Config struct {
		// Root is the installation root to watch recursively.
		Root string
		// Patterns select relevant files (doublestar, relative to Root).
		// Empty means the defaults.
		Patterns []string
		// Ignore adds to the built-in ignore patterns.
		Ignore []string
		// Debounce is the quiet period before a reload. Zero or negative
		// means DefaultDebounce.
		Debounce time.Duration
		Reloader Reloader
		// OnReload, when set, is called after every successful reload with
		// the new set and the changed paths (relative, slash separated).
		OnReload func(set *manifest.Set, changed []string)
	}

	// Watcher reloads a Reloader when matching files under Root change.
	// Run must be called exactly once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		root     string
		patterns []string
		ignores  []string
		debounce time.Duration
		started  atomic.Bool
	}
)

// Validate checks required fields and pattern syntax.
func (c Config) Validate() error {
	var errs []error
	if c.Root == "" {
		errs = append(errs, ErrNoRoot)
	}
	if c.Reloader == nil {
		errs = append(errs, ErrNoReloader)
	}
	errs = append(errs, validatePatterns(c.Patterns, "watch"), validatePatterns(c.Ignore, "ignore"))
	return errors.Join(errs...)
}

// DefaultPatterns returns a copy of the built-in watch patterns.
func DefaultPatterns() []string { return slices.Clone(defaultPatterns) }

// DefaultIgnores returns a copy of the built-in ignore patterns.
func DefaultIgnores() []string { return slices.Clone(defaultIgnores) }

// New validates cfg and registers every non-ignored directory under Root.
func New(cfg Config) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve root: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		cfg:      cfg,
		fsw:      fsw,
		root:     root,
		patterns: cfg.Patterns,
		ignores:  append(DefaultIgnores(), cfg.Ignore...),
		debounce: cfg.Debounce,
	}
	if len(w.patterns) == 0 {
		w.patterns = DefaultPatterns()
	}
	if w.debounce <= 0 {
		w.debounce = DefaultDebounce
	}

	if err := w.addTree(root); err != nil {
		if closeErr := fsw.Close(); closeErr != nil {
			slog.Warn("close fsnotify after init failure", "error", closeErr)
		}
		return nil, err
	}
	return w, nil
}

// Root returns the absolute watched root.
func (w *Watcher) Root() string { return w.root }

// Run processes events until ctx is canceled. It returns nil on
// cancellation and an error when the watcher itself breaks.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		busy    atomic.Bool
	)

	// fire runs on the timer goroutine. A reload still in progress defers
	// the pending paths to the next debounce window instead of dropping them.
	fire := func() {
		if ctx.Err() != nil {
			return
		}
		if !busy.CompareAndSwap(false, true) {
			mu.Lock()
			if timer != nil {
				timer.Reset(w.debounce)
			}
			mu.Unlock()
			return
		}
		defer busy.Store(false)

		mu.Lock()
		changed := slices.Sorted(maps.Keys(pending))
		clear(pending)
		mu.Unlock()

		if len(changed) > 0 {
			w.reload(ctx, changed)
		}
	}

	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		if err := w.fsw.Close(); err != nil {
			slog.Warn("close fsnotify", "error", err)
		}
	}()

	slog.Info("watching installation", "root", w.root, "debounce", w.debounce)
	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: fsnotify event channel closed unexpectedly")
			}
			rel, relevant := w.relevant(evt)
			if !relevant {
				continue
			}
			eventsTotal.WithLabelValues(opName(evt.Op)).Inc()

			mu.Lock()
			pending[rel] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, fire)
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: fsnotify error channel closed unexpectedly")
			}
			if isFatal(err) {
				return fmt.Errorf("watch: fatal fsnotify error: %w", err)
			}
			slog.Warn("fsnotify error", "error", err)
		}
	}
}

// relevant reports whether evt should schedule a reload. New directories
// are added to the watch. Removals and renames always count because a
// removed module directory matches no file pattern.
func (w *Watcher) relevant(evt fsnotify.Event) (string, bool) {
	rel, err := filepath.Rel(w.root, evt.Name)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if w.ignored(rel) {
		return "", false
	}

	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if err := w.addTree(evt.Name); err != nil {
				slog.Warn("watch new directory", "path", evt.Name, "error", err)
			}
			return rel, true
		}
	}
	if evt.Has(fsnotify.Remove) || evt.Has(fsnotify.Rename) {
		return rel, true
	}
	if evt.Op == fsnotify.Chmod {
		return "", false
	}
	return rel, matchAny(w.patterns, rel)
}

func (w *Watcher) reload(ctx context.Context, changed []string) {
	start := time.Now()
	set, err := w.cfg.Reloader.Reload(ctx)
	if err != nil {
		reloadsTotal.WithLabelValues("error").Inc()
		slog.Warn("reload after change failed, keeping previous set", "changed", len(changed), "error", err)
		return
	}
	reloadsTotal.WithLabelValues("ok").Inc()

	counts := set.CountByStatus()
	slog.Info("installation reloaded",
		"changed", len(changed),
		"agents", len(set.Agents),
		"workflows", len(set.Workflows),
		"tasks", len(set.Tasks),
		"missing", counts[manifest.StatusNoFileFound],
		"elapsed", time.Since(start).Round(time.Millisecond))

	if w.cfg.OnReload != nil {
		w.cfg.OnReload(set, changed)
	}
}

// addTree registers dir and every non-ignored directory beneath it.
// Unreadable directories are skipped with a warning.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			slog.Warn("skipping unreadable path", "path", path, "error", walkErr)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil //nolint:nilerr // outside the root, nothing to watch
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && (w.ignored(rel) || w.ignored(rel+"/")) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) ignored(rel string) bool {
	return matchAny(w.ignores, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func validatePatterns(patterns []string, label string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("watch: invalid %s pattern %q: %w", label, pat, doublestar.ErrBadPattern)
		}
	}
	return nil
}

func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return "other"
	}
}

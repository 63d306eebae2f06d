// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bmadx/bmadx/internal/location"
)

const moduleConfigFile = "config.yaml"

type (
	// Reconciler owns the current Set of one location and rebuilds it on
	// demand. Readers always see a complete Set: Reload swaps the pointer
	// only after the new Set is built.
	Reconciler struct {
		loc location.Location

		mu        sync.RWMutex
		current   *Set
		listeners []func(*Set)
	}

	moduleConfig struct {
		Version string `yaml:"version"`
		Name    string `yaml:"name"`
	}
)

// Reconcile merges the declared manifests of loc with a filesystem scan of
// its root. Recoverable problems are reported as Set.Diagnostics; an error
// is returned only for a rejected location or a canceled context.
func Reconcile(ctx context.Context, loc location.Location) (*Set, error) {
	if !loc.IsValid() {
		return nil, fmt.Errorf("reconcile %s: %w", loc.OriginalPath, ErrLocationNotValid)
	}

	start := time.Now()
	set := &Set{Location: loc}

	for _, kind := range Kinds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		declared, diags := loadDeclared(loc, kind)
		set.Diagnostics = append(set.Diagnostics, diags...)
		scanned, diags := scan(loc, kind)
		set.Diagnostics = append(set.Diagnostics, diags...)

		merged := merge(declared, scanned)
		switch kind {
		case KindAgent:
			set.Agents = merged
		case KindWorkflow:
			set.Workflows = merged
		case KindTask:
			set.Tasks = merged
		}
	}

	set.Modules = loadModules(loc, set)
	for _, d := range set.Diagnostics {
		slog.Debug("reconcile diagnostic", "code", d.Code, "path", d.Path, "message", d.Message)
	}

	observe(set, time.Since(start))
	return set, nil
}

// merge joins declared and scanned records on Key. Declared rows keep their
// manifest metadata; a scanned file only confirms existence.
func merge(declared, scanned []Record) []Record {
	onDisk := make(map[string]struct{}, len(scanned))
	for _, r := range scanned {
		onDisk[r.Key()] = struct{}{}
	}

	out := make([]Record, 0, len(declared)+len(scanned))
	inManifest := make(map[string]struct{}, len(declared))
	for _, r := range declared {
		inManifest[r.Key()] = struct{}{}
		if _, ok := onDisk[r.Key()]; ok {
			r.ExistsOnDisk = true
		}
		if r.ExistsOnDisk {
			r.Status = StatusVerified
		} else {
			r.Status = StatusNoFileFound
		}
		out = append(out, r)
	}
	for _, r := range scanned {
		if _, ok := inManifest[r.Key()]; ok {
			continue
		}
		r.Status = StatusNotInManifest
		out = append(out, r)
	}

	slices.SortStableFunc(out, compareRecords)
	return out
}

func compareRecords(a, b Record) int {
	return cmp.Or(
		cmp.Compare(a.ModuleName, b.ModuleName),
		cmp.Compare(a.Name, b.Name),
		cmp.Compare(a.ModuleRelativePath, b.ModuleRelativePath),
	)
}

// loadModules collects every module directory under the root plus any module
// named only by a record.
func loadModules(loc location.Location, set *Set) []Module {
	names := make(map[string]struct{})
	for _, r := range set.All() {
		if r.ModuleName != "" {
			names[r.ModuleName] = struct{}{}
		}
	}

	entries, err := os.ReadDir(loc.ResolvedRoot)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() || skipModuleDir(e.Name()) {
				continue
			}
			if isFile(filepath.Join(loc.ResolvedRoot, e.Name(), moduleConfigFile)) {
				names[e.Name()] = struct{}{}
			}
		}
	}

	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	slices.Sort(sorted)

	modules := make([]Module, 0, len(sorted))
	for _, name := range sorted {
		m, diag := loadModule(loc, name)
		if diag != nil {
			set.Diagnostics = append(set.Diagnostics, *diag)
		}
		modules = append(modules, m)
	}
	return modules
}

func loadModule(loc location.Location, name string) (Module, *Diagnostic) {
	m := Module{
		Name:       name,
		ConfigPath: filepath.Join(loc.ResolvedRoot, name, moduleConfigFile),
		VersionTag: location.VersionUnknown,
	}
	if loc.VersionTag == location.VersionLegacy {
		m.VersionTag = location.VersionLegacy
	}

	data, err := os.ReadFile(m.ConfigPath)
	if err != nil {
		m.ConfigPath = ""
		return m, nil
	}

	var cfg moduleConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		msg := strings.TrimSpace(err.Error())
		m.Errors = append(m.Errors, msg)
		return m, &Diagnostic{
			Severity: SeverityWarning,
			Code:     CodeModuleConfigInvalid,
			Message:  fmt.Sprintf("module %s: %s", name, msg),
			Path:     m.ConfigPath,
			Cause:    err,
		}
	}

	m.Version = cfg.Version
	if m.VersionTag != location.VersionLegacy {
		m.VersionTag = location.VersionCurrent
	}
	return m, nil
}

// NewReconciler creates a Reconciler for loc. No work is done until the
// first Reload.
func NewReconciler(loc location.Location) *Reconciler {
	return &Reconciler{loc: loc}
}

// Location returns the location this reconciler serves.
func (r *Reconciler) Location() location.Location { return r.loc }

// Reload rebuilds the Set from scratch and swaps it in. On error the
// previous Set stays current.
func (r *Reconciler) Reload(ctx context.Context) (*Set, error) {
	set, err := Reconcile(ctx, r.loc)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.current = set
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	reloadsTotal.Inc()
	for _, fn := range listeners {
		fn(set)
	}
	return set, nil
}

// Current returns the latest Set, or nil before the first Reload.
func (r *Reconciler) Current() *Set {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Ensure returns the current Set, reconciling first if none exists yet.
func (r *Reconciler) Ensure(ctx context.Context) (*Set, error) {
	if set := r.Current(); set != nil {
		return set, nil
	}
	return r.Reload(ctx)
}

// OnReload registers fn to be called with every new Set.
func (r *Reconciler) OnReload(fn func(*Set)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

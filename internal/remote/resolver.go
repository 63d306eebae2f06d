// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/bmadx/bmadx/internal/filereader"
	"github.com/bmadx/bmadx/internal/fuzzy"
)

type (
	// Resolver turns "@alias:subpath" into agent content.
	Resolver struct {
		registry *Registry
		cache    *Cache
	}

	// Resolution is the result of a successful Resolve.
	Resolution struct {
		Ref     Ref
		Record  CatalogRecord
		Content string
		// Corrected is set when a near-miss name was accepted.
		Corrected   bool
		Suggestions []string
		Entry       CacheEntry
	}
)

// NewResolver creates a Resolver.
func NewResolver(registry *Registry, cache *Cache) *Resolver {
	return &Resolver{registry: registry, cache: cache}
}

// Registry returns the alias registry.
func (r *Resolver) Registry() *Registry { return r.registry }

// Cache returns the clone cache.
func (r *Resolver) Cache() *Cache { return r.cache }

// Resolve parses raw, makes the repository available, and returns the
// requested agent. A direct file hit wins; otherwise the last path segment is
// fuzzy matched against the catalog of the source.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*Resolution, error) {
	ref, err := ParseRef(raw)
	if err != nil {
		return nil, err
	}
	spec, err := r.registry.Lookup(ref.Alias)
	if err != nil {
		return nil, err
	}
	entry, err := r.cache.Ensure(ctx, spec, ref.Subpath)
	if err != nil {
		return nil, err
	}

	reader := filereader.New(entry.LocalCacheDir)
	res := &Resolution{Ref: ref, Entry: entry}

	direct := path.Join(spec.BaseSubpath, ref.Subpath)
	if path.Ext(direct) == "" {
		direct += ".md"
	}
	if reader.Exists(direct) {
		res.Record = recordFor(direct)
		resolutionsTotal.WithLabelValues("direct").Inc()
	} else {
		rec, corrected, err := r.match(entry, spec, ref)
		if err != nil {
			resolutionsTotal.WithLabelValues("failed").Inc()
			return nil, err
		}
		res.Record = rec
		res.Corrected = corrected
		if corrected {
			res.Suggestions = []string{rec.Name}
			resolutionsTotal.WithLabelValues("corrected").Inc()
		} else {
			resolutionsTotal.WithLabelValues("exact").Inc()
		}
	}

	content, err := reader.ReadFile(res.Record.Path)
	if err != nil {
		return nil, err
	}
	res.Content = content
	return res, nil
}

// List returns the catalog of alias restricted to its base subpath.
func (r *Resolver) List(ctx context.Context, alias string) ([]CatalogRecord, error) {
	spec, err := r.registry.Lookup(alias)
	if err != nil {
		return nil, err
	}
	entry, err := r.cache.Ensure(ctx, spec, "")
	if err != nil {
		return nil, err
	}
	return r.scoped(entry, spec)
}

func (r *Resolver) scoped(entry CacheEntry, spec SourceSpec) ([]CatalogRecord, error) {
	all, err := r.cache.Catalog(entry)
	if err != nil {
		return nil, err
	}
	if spec.BaseSubpath == "" {
		return all, nil
	}
	prefix := spec.BaseSubpath + "/"
	return slices.DeleteFunc(slices.Clone(all), func(rec CatalogRecord) bool {
		return !strings.HasPrefix(rec.Path, prefix)
	}), nil
}

func (r *Resolver) match(entry CacheEntry, spec SourceSpec, ref Ref) (CatalogRecord, bool, error) {
	records, err := r.scoped(entry, spec)
	if err != nil {
		return CatalogRecord{}, false, err
	}

	candidates := make([]fuzzy.Candidate, len(records))
	for i, rec := range records {
		candidates[i] = fuzzy.Candidate{Name: rec.Name, Module: rec.ModuleName}
	}

	m, err := fuzzy.Match(queryFor(ref.Subpath), candidates, fmt.Sprintf("bmadx remote list @%s", ref.Alias))
	if err != nil {
		var none *fuzzy.NoCandidatesError
		if errors.As(err, &none) {
			none.Source = "@" + ref.Alias
		}
		return CatalogRecord{}, false, err
	}

	for _, rec := range records {
		if rec.Name == m.Candidate.Name && rec.ModuleName == m.Candidate.Module {
			return rec, m.Kind == fuzzy.MatchCorrected, nil
		}
	}
	return CatalogRecord{}, false, &fuzzy.NoMatchError{Query: ref.Subpath}
}

// queryFor reduces "bmm/agents/pm.md" to "bmm/pm" and "pm" to "pm".
func queryFor(subpath string) string {
	segs := strings.Split(strings.TrimSuffix(subpath, path.Ext(subpath)), "/")
	segs = slices.DeleteFunc(segs, func(s string) bool { return s == "agents" || s == "" })
	if len(segs) >= 2 {
		return segs[len(segs)-2] + "/" + segs[len(segs)-1]
	}
	if len(segs) == 1 {
		return segs[0]
	}
	return subpath
}

func recordFor(rel string) CatalogRecord {
	base := path.Base(rel)
	rec := CatalogRecord{Name: strings.TrimSuffix(base, path.Ext(base)), Path: rel}
	if dir := path.Dir(rel); path.Base(dir) == "agents" && path.Dir(dir) != "." {
		rec.ModuleName = path.Base(path.Dir(dir))
	}
	return rec
}

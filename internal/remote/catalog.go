// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

const catalogPattern = "**/agents/*.md"

type (
	// CatalogRecord is one agent found in a cached repository.
	CatalogRecord struct {
		Name       string
		ModuleName string
		// Path is slash separated and relative to the repository root.
		Path        string
		DisplayName string
	}

	frontmatter struct {
		Name  string `yaml:"name"`
		Title string `yaml:"title"`
	}
)

// Qualified returns "module/name".
func (r CatalogRecord) Qualified() string {
	if r.ModuleName == "" {
		return r.Name
	}
	return r.ModuleName + "/" + r.Name
}

// Catalog lists the agents of a cached clone. Catalogs are immutable per
// commit and memoized under ContentHash@CurrentCommit.
func (c *Cache) Catalog(entry CacheEntry) ([]CatalogRecord, error) {
	key := entry.ContentHash + "@" + entry.CurrentCommit
	if records, ok := c.catalogs.Get(key); ok {
		catalogLookups.WithLabelValues("hit").Inc()
		return records, nil
	}
	catalogLookups.WithLabelValues("miss").Inc()

	records, err := buildCatalog(entry.LocalCacheDir)
	if err != nil {
		return nil, err
	}
	c.catalogs.Add(key, records)
	return records, nil
}

func buildCatalog(repoDir string) ([]CatalogRecord, error) {
	matches, err := doublestar.Glob(os.DirFS(repoDir), catalogPattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", repoDir, err)
	}

	records := make([]CatalogRecord, 0, len(matches))
	for _, rel := range matches {
		if skipCatalogPath(rel) {
			continue
		}
		base := path.Base(rel)
		rec := CatalogRecord{
			Name: strings.TrimSuffix(base, path.Ext(base)),
			Path: rel,
		}
		// "<module>/agents/x.md": the module is the directory above agents.
		if agentsDir := path.Dir(rel); path.Dir(agentsDir) != "." {
			rec.ModuleName = path.Base(path.Dir(agentsDir))
		}
		rec.DisplayName = readDisplayName(filepath.Join(repoDir, filepath.FromSlash(rel)))
		records = append(records, rec)
	}
	return records, nil
}

func skipCatalogPath(rel string) bool {
	if strings.Contains(path.Base(rel), ".customize.") {
		return true
	}
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") || seg == "node_modules" {
			return true
		}
	}
	return false
}

// readDisplayName returns the frontmatter name or title, or "".
func readDisplayName(file string) string {
	data, err := os.ReadFile(file)
	if err != nil {
		return ""
	}
	fm, ok := splitFrontmatter(data)
	if !ok {
		return ""
	}
	var meta frontmatter
	if err := yaml.Unmarshal(fm, &meta); err != nil {
		return ""
	}
	if meta.Title != "" {
		return meta.Title
	}
	return meta.Name
}

func splitFrontmatter(data []byte) ([]byte, bool) {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	rest, ok := bytes.CutPrefix(data, []byte("---\n"))
	if !ok {
		return nil, false
	}
	fm, _, ok := bytes.Cut(rest, []byte("\n---"))
	return fm, ok
}

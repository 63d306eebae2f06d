// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/bmadx/bmadx/internal/location"
)

// scanPatterns are the on-disk shapes of each kind, relative to the
// installation root. Module patterns take the module from the first path
// segment; root patterns cover legacy and plausible layouts that keep
// agents and workflows directly under the root and have no module.
var scanPatterns = map[Kind]struct{ module, root []string }{
	KindAgent:    {module: []string{"*/agents/*.md"}, root: []string{"agents/*.md"}},
	KindWorkflow: {module: []string{"*/workflows/**/" + workflowFile}, root: []string{"workflows/**/" + workflowFile}},
	KindTask:     {module: []string{"*/tasks/*.{xml,md}"}, root: []string{"tasks/*.{xml,md}"}},
}

// contentDirs are the root-level directories that hold records rather than
// modules.
var contentDirs = []string{"agents", "workflows", "tasks"}

// scan walks the installation root for files of one kind.
func scan(loc location.Location, kind Kind) ([]Record, []Diagnostic) {
	var (
		fsys    = os.DirFS(loc.ResolvedRoot)
		records []Record
		diags   []Diagnostic
		seen    = make(map[string]struct{})
	)

	add := func(patterns []string, moduleOf func(rel string) (string, bool)) {
		for _, pattern := range patterns {
			matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
			if err != nil {
				diags = append(diags, Diagnostic{
					Severity: SeverityWarning,
					Code:     CodeScanFailed,
					Message:  fmt.Sprintf("scan %q failed: %v", pattern, err),
					Path:     loc.ResolvedRoot,
					Cause:    err,
				})
				continue
			}

			for _, rel := range matches {
				module, ok := moduleOf(rel)
				if !ok || isCustomization(rel) {
					continue
				}
				if _, dup := seen[rel]; dup {
					continue
				}
				seen[rel] = struct{}{}

				records = append(records, Record{
					Kind:               kind,
					Origin:             loc,
					ModuleName:         module,
					Name:               nameFromPath(kind, rel),
					BmadRelativePath:   path.Join(installPrefix(loc), rel),
					ModuleRelativePath: rel,
					AbsolutePath:       filepath.Join(loc.ResolvedRoot, filepath.FromSlash(rel)),
					ExistsOnDisk:       true,
				})
			}
		}
	}

	patterns := scanPatterns[kind]
	add(patterns.module, func(rel string) (string, bool) {
		module := firstSegment(rel)
		return module, !skipModuleDir(module) && !slices.Contains(contentDirs, module)
	})
	add(patterns.root, func(string) (string, bool) { return "", true })
	return records, diags
}

// installPrefix is the directory name manifests use in front of
// root-relative paths.
func installPrefix(loc location.Location) string {
	if loc.VersionTag == location.VersionLegacy {
		return location.LegacyInstallDirName
	}
	return location.InstallDirName
}

// nameFromPath derives the record name: workflows are named after their
// directory, everything else after the file stem.
func nameFromPath(kind Kind, rel string) string {
	if kind == KindWorkflow {
		return path.Base(path.Dir(rel))
	}
	base := path.Base(rel)
	return strings.TrimSuffix(base, path.Ext(base))
}

// skipModuleDir excludes the manifest directory and hidden or private dirs.
func skipModuleDir(name string) bool {
	return name == "" || name == location.ManifestDirName || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

func isCustomization(rel string) bool {
	return strings.Contains(path.Base(rel), ".customize.")
}

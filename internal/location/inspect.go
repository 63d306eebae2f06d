// SPDX-License-Identifier: MPL-2.0

package location

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	// ManifestDirName is the configuration-manifest directory of the current layout.
	ManifestDirName = "_cfg"
	// InstallDirName is the conventional installation directory inside a project.
	InstallDirName = "bmad"
	// LegacyManifestFile is the single-file manifest of the older layout.
	LegacyManifestFile = "install-manifest.yaml"
	// LegacyInstallDirName is the hidden installation directory of the older layout.
	LegacyInstallDirName = ".bmad-core"

	// nestedSearchDepth bounds the downward walk in auto mode.
	nestedSearchDepth = 2
)

// skipNested lists directory names never descended into by the nested walk.
var skipNested = []string{"node_modules", "vendor", "__pycache__"}

// marker is a detected installation inside a candidate directory.
type marker struct {
	root        string
	manifestDir string
	tag         VersionTag
}

// inspect checks one source without any walking.
func inspect(src Source) Location {
	loc := Location{
		Kind:         src.Kind,
		Priority:     src.Kind.Priority(),
		DisplayName:  src.DisplayName,
		OriginalPath: src.Path,
	}
	if loc.DisplayName == "" {
		loc.DisplayName = string(src.Kind)
	}

	if strings.TrimSpace(src.Path) == "" {
		loc.Status = StatusInvalid
		loc.Reason = "empty path"
		loc.Cause = &LocationInvalidError{Path: src.Path, Reason: loc.Reason}
		return loc
	}

	abs, err := filepath.Abs(src.Path)
	if err != nil {
		loc.Status = StatusInvalid
		loc.Reason = "cannot resolve absolute path: " + err.Error()
		loc.Cause = &LocationInvalidError{Path: src.Path, Reason: loc.Reason}
		return loc
	}

	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		loc.Status = StatusMissing
		loc.Reason = "does not exist"
		loc.Cause = &LocationMissingError{Path: abs}
		return loc
	case err != nil:
		loc.Status = StatusInvalid
		loc.Reason = "cannot stat: " + err.Error()
		loc.Cause = &LocationInvalidError{Path: abs, Reason: loc.Reason}
		return loc
	case !info.IsDir():
		loc.Status = StatusInvalid
		loc.Reason = "not a directory"
		loc.Cause = &LocationInvalidError{Path: abs, Reason: loc.Reason}
		return loc
	}

	if m, ok := detect(abs); ok {
		return accept(loc, m, false)
	}

	loc.Status = StatusNotFound
	loc.Reason = "no " + InstallDirName + "/" + ManifestDirName + " directory, " + LegacyManifestFile + ", or agents/workflows directory"
	return loc
}

func accept(loc Location, m marker, walked bool) Location {
	loc.Status = StatusValid
	loc.ResolvedRoot = m.root
	loc.ManifestDir = m.manifestDir
	loc.VersionTag = m.tag
	loc.Reason = ""
	loc.Cause = nil
	loc.Walked = walked
	return loc
}

// detect looks for an installation marker directly inside dir. The current
// layout wins over the legacy one, which wins over the plausibility check.
func detect(dir string) (marker, bool) {
	for _, root := range []string{
		filepath.Join(dir, InstallDirName),
		dir,
		filepath.Join(dir, "src", InstallDirName),
	} {
		cfg := filepath.Join(root, ManifestDirName)
		if isDir(cfg) {
			return marker{root: root, manifestDir: cfg, tag: VersionCurrent}, true
		}
	}

	for _, root := range []string{filepath.Join(dir, LegacyInstallDirName), dir} {
		if isFile(filepath.Join(root, LegacyManifestFile)) {
			return marker{root: root, tag: VersionLegacy}, true
		}
	}

	if looksPlausible(dir) {
		return marker{root: dir, tag: VersionUnknown}, true
	}
	return marker{}, false
}

// looksPlausible accepts a directory holding agents or workflows either
// directly or one module level down.
func looksPlausible(dir string) bool {
	if hasContentDirs(dir) {
		return true
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if hasContentDirs(filepath.Join(dir, e.Name())) {
			return true
		}
	}
	return false
}

func hasContentDirs(dir string) bool {
	return isDir(filepath.Join(dir, "agents")) || isDir(filepath.Join(dir, "workflows"))
}

// walkUp searches the ancestors of dir for a current or legacy marker.
// Plausibility is not accepted on the way up; a parent that merely has an
// "agents" directory is not an installation.
func walkUp(dir string) (marker, bool) {
	current := filepath.Dir(dir)
	for {
		if m, ok := detect(current); ok && m.tag != VersionUnknown {
			return m, true
		}
		parent := filepath.Dir(current)
		if parent == current {
			return marker{}, false
		}
		current = parent
	}
}

// walkDown performs a breadth-first search below dir, bounded by
// nestedSearchDepth, returning the first marker in lexical order.
func walkDown(dir string) (marker, bool) {
	level := []string{dir}
	for depth := 0; depth < nestedSearchDepth; depth++ {
		var next []string
		for _, parent := range level {
			entries, err := os.ReadDir(parent)
			if err != nil {
				continue
			}
			for _, e := range entries {
				name := e.Name()
				if !e.IsDir() || strings.HasPrefix(name, ".") || slices.Contains(skipNested, name) {
					continue
				}
				child := filepath.Join(parent, name)
				if m, ok := detect(child); ok && m.tag != VersionUnknown {
					return m, true
				}
				next = append(next, child)
			}
		}
		level = next
	}
	return marker{}, false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

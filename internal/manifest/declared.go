// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmadx/bmadx/internal/location"
)

const (
	colName        = "name"
	colModule      = "module"
	colPath        = "path"
	colDisplayName = "displayName"
	colTitle       = "title"
	colDescription = "description"

	workflowFile = "workflow.yaml"

	// utf8BOM is stripped from the first header cell; spreadsheet exports add it.
	utf8BOM = "\uFEFF"
)

// ManifestFile returns the manifest file name for a kind.
func ManifestFile(kind Kind) string {
	return string(kind) + "-manifest.csv"
}

// loadDeclared parses the manifest of one kind. A file that fails to parse
// contributes no records and one diagnostic; a missing file contributes
// nothing.
func loadDeclared(loc location.Location, kind Kind) ([]Record, []Diagnostic) {
	if loc.ManifestDir == "" {
		return nil, nil
	}

	file := filepath.Join(loc.ManifestDir, ManifestFile(kind))
	rows, err := readCSV(file)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("manifest not present", "kind", kind, "path", file)
		return nil, nil
	}
	if err != nil {
		parseErr := &ManifestParseError{Path: file, Cause: err}
		return nil, []Diagnostic{{
			Severity: SeverityError,
			Code:     CodeManifestParseFailed,
			Message:  fmt.Sprintf("%s manifest skipped: %v", kind, err),
			Path:     file,
			Cause:    parseErr,
		}}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := indexHeader(rows[0])
	if _, ok := header[colName]; !ok {
		return nil, []Diagnostic{missingColumn(file, kind, colName)}
	}
	if _, ok := header[colPath]; !ok {
		return nil, []Diagnostic{missingColumn(file, kind, colPath)}
	}

	var (
		records []Record
		diags   []Diagnostic
		seen    = make(map[string]int)
	)
	for i, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		line := i + 2

		name := cell(row, header, colName)
		rawPath := cell(row, header, colPath)
		if name == "" || rawPath == "" {
			diags = append(diags, rowSkipped(file, line, "missing name or path"))
			continue
		}

		rel, err := normalizePath(rawPath, kind)
		if err != nil {
			diags = append(diags, rowSkipped(file, line, err.Error()))
			continue
		}

		module := cell(row, header, colModule)
		if module == "" {
			module = firstSegment(rel)
		}

		rec := Record{
			Kind:               kind,
			Origin:             loc,
			ModuleName:         module,
			Name:               name,
			DisplayName:        cell(row, header, colDisplayName),
			Title:              cell(row, header, colTitle),
			Description:        cell(row, header, colDescription),
			BmadRelativePath:   path.Join(location.InstallDirName, rel),
			ModuleRelativePath: rel,
			AbsolutePath:       filepath.Join(loc.ResolvedRoot, filepath.FromSlash(rel)),
		}
		rec.ExistsOnDisk = isFile(rec.AbsolutePath)

		if first, dup := seen[rec.Key()]; dup {
			diags = append(diags, rowSkipped(file, line, fmt.Sprintf("duplicate of line %d", first)))
			continue
		}
		seen[rec.Key()] = line
		records = append(records, rec)
	}

	return records, diags
}

func readCSV(file string) ([][]string, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

func indexHeader(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		idx[h] = i
	}
	return idx
}

func cell(row []string, header map[string]int, col string) string {
	i, ok := header[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// normalizePath turns a manifest path ("/bmad/core/agents/pm.md",
// "{project-root}/bmad/core/agents/pm.md", "core/agents/pm.md") into a path
// relative to the installation root. Workflow directories gain workflow.yaml.
func normalizePath(raw string, kind Kind) (string, error) {
	p := filepath.ToSlash(strings.TrimSpace(raw))
	p = strings.TrimPrefix(p, "{project-root}")
	p = strings.TrimLeft(p, "/")
	p = strings.TrimPrefix(p, location.InstallDirName+"/")
	p = path.Clean(p)

	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("path %q escapes the installation root", raw)
	}
	if kind == KindWorkflow && path.Ext(p) == "" {
		p = path.Join(p, workflowFile)
	}
	return p, nil
}

func firstSegment(rel string) string {
	if i := strings.IndexByte(rel, '/'); i > 0 {
		return rel[:i]
	}
	return ""
}

func missingColumn(file string, kind Kind, col string) Diagnostic {
	return Diagnostic{
		Severity: SeverityError,
		Code:     CodeManifestParseFailed,
		Message:  fmt.Sprintf("%s manifest skipped: header has no %q column", kind, col),
		Path:     file,
		Cause:    &ManifestParseError{Path: file, Cause: fmt.Errorf("missing column %q", col)},
	}
}

func rowSkipped(file string, line int, reason string) Diagnostic {
	return Diagnostic{
		Severity: SeverityWarning,
		Code:     CodeManifestRowSkipped,
		Message:  fmt.Sprintf("line %d skipped: %s", line, reason),
		Path:     file,
	}
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"

	"github.com/bmadx/bmadx/internal/location"
)

const (
	// KindAgent is a markdown persona.
	KindAgent Kind = "agent"
	// KindWorkflow is a YAML process definition.
	KindWorkflow Kind = "workflow"
	// KindTask is a standalone task definition.
	KindTask Kind = "task"

	// StatusVerified means declared in a manifest and present on disk.
	StatusVerified Status = "verified"
	// StatusNotInManifest means found by the filesystem scan only.
	StatusNotInManifest Status = "not-in-manifest"
	// StatusNoFileFound means declared in a manifest but absent on disk.
	StatusNoFileFound Status = "no-file-found"

	// SeverityWarning indicates a recoverable reconciliation warning.
	SeverityWarning Severity = "warning"
	// SeverityError indicates a non-fatal reconciliation error.
	SeverityError Severity = "error"

	// CodeManifestParseFailed marks a manifest file that could not be parsed.
	CodeManifestParseFailed = "manifest_parse_failed"
	// CodeManifestRowSkipped marks a single dropped manifest row.
	CodeManifestRowSkipped = "manifest_row_skipped"
	// CodeModuleConfigInvalid marks an unreadable module config.yaml.
	CodeModuleConfigInvalid = "module_config_invalid"
	// CodeScanFailed marks a filesystem scan pattern that failed.
	CodeScanFailed = "scan_failed"
)

var (
	// ErrInvalidKind is returned when a Kind value is not recognized.
	ErrInvalidKind = errors.New("invalid record kind")
	// ErrManifestParse is the sentinel wrapped by ManifestParseError.
	ErrManifestParse = errors.New("manifest parse error")
	// ErrLocationNotValid is returned when reconciling a rejected location.
	ErrLocationNotValid = errors.New("location is not a valid installation")

	// Kinds lists every record kind in output order.
	Kinds = []Kind{KindAgent, KindWorkflow, KindTask}
)

type (
	// Kind is the closed set of record kinds.
	Kind string

	// Status is the closed set of reconciliation outcomes.
	Status string

	// Severity represents diagnostic severity.
	Severity string

	// InvalidKindError is returned when a Kind value is not recognized.
	InvalidKindError struct {
		Value Kind
	}

	// ManifestParseError describes a manifest file that was skipped.
	ManifestParseError struct {
		Path  string
		Cause error
	}

	// Diagnostic is a structured, non-fatal reconciliation finding returned
	// to callers rather than written to stderr.
	Diagnostic struct {
		Severity Severity
		// Code is a machine-readable identifier (e.g., "manifest_parse_failed").
		Code    string
		Message string
		Path    string
		Cause   error
	}

	// Record is one agent, workflow, or task. Records are rebuilt wholesale
	// on every pass and never mutated after being returned.
	Record struct {
		Kind        Kind
		Origin      location.Location
		ModuleName  string
		Name        string
		DisplayName string
		Title       string
		Description string
		// BmadRelativePath is the path as written in manifests ("bmad/<module>/...").
		BmadRelativePath string
		// ModuleRelativePath is relative to the installation root and slash
		// separated ("<module>/agents/pm.md"). Together with Kind it is the
		// reconciliation key.
		ModuleRelativePath string
		AbsolutePath       string
		ExistsOnDisk       bool
		Status             Status
	}

	// Module is a named grouping that shares a config.yaml.
	Module struct {
		Name       string
		ConfigPath string
		Version    string
		VersionTag location.VersionTag
		Errors     []string
	}

	// Set is the result of reconciling one location.
	Set struct {
		Location    location.Location
		Agents      []Record
		Workflows   []Record
		Tasks       []Record
		Modules     []Module
		Diagnostics []Diagnostic
	}
)

// Validate returns an error if the Kind is not recognized.
func (k Kind) Validate() error {
	switch k {
	case KindAgent, KindWorkflow, KindTask:
		return nil
	default:
		return &InvalidKindError{Value: k}
	}
}

func (k Kind) String() string { return string(k) }

func (s Status) String() string { return string(s) }

func (e *InvalidKindError) Error() string {
	return fmt.Sprintf("invalid record kind %q (valid: agent, workflow, task)", e.Value)
}

func (e *InvalidKindError) Unwrap() error { return ErrInvalidKind }

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("parse manifest %s: %v", e.Path, e.Cause)
}

func (e *ManifestParseError) Unwrap() error { return ErrManifestParse }

// Key returns the reconciliation key of the record.
func (r Record) Key() string {
	return string(r.Kind) + ":" + r.ModuleRelativePath
}

// QualifiedName returns "module/name".
func (r Record) QualifiedName() string {
	if r.ModuleName == "" {
		return r.Name
	}
	return r.ModuleName + "/" + r.Name
}

// Records returns the records of one kind.
func (s *Set) Records(kind Kind) []Record {
	switch kind {
	case KindAgent:
		return s.Agents
	case KindWorkflow:
		return s.Workflows
	case KindTask:
		return s.Tasks
	default:
		return nil
	}
}

// All returns every record, agents first, then workflows, then tasks.
func (s *Set) All() []Record {
	out := make([]Record, 0, len(s.Agents)+len(s.Workflows)+len(s.Tasks))
	out = append(out, s.Agents...)
	out = append(out, s.Workflows...)
	return append(out, s.Tasks...)
}

// Lookup returns every record of kind whose name equals name, in set order.
// More than one result means the name exists in several modules.
func (s *Set) Lookup(kind Kind, name string) []Record {
	var out []Record
	for _, r := range s.Records(kind) {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

// Find returns the first record of kind named name that exists on disk,
// falling back to the first declared one.
func (s *Set) Find(kind Kind, name string) (Record, bool) {
	matches := s.Lookup(kind, name)
	for _, r := range matches {
		if r.ExistsOnDisk {
			return r, true
		}
	}
	if len(matches) > 0 {
		return matches[0], true
	}
	return Record{}, false
}

// Names returns the distinct names of one kind in set order.
func (s *Set) Names(kind Kind) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range s.Records(kind) {
		if _, ok := seen[r.Name]; ok {
			continue
		}
		seen[r.Name] = struct{}{}
		out = append(out, r.Name)
	}
	return out
}

// Module returns the named module.
func (s *Set) Module(name string) (Module, bool) {
	for _, m := range s.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return Module{}, false
}

// CountByStatus tallies records per status.
func (s *Set) CountByStatus() map[Status]int {
	out := map[Status]int{StatusVerified: 0, StatusNotInManifest: 0, StatusNoFileFound: 0}
	for _, r := range s.All() {
		out[r.Status]++
	}
	return out
}

// SPDX-License-Identifier: MPL-2.0

package location

import (
	"errors"
	"fmt"
)

const (
	// KindProject is the project-local tree (the working directory).
	KindProject SourceKind = "project"
	// KindCLI is a path supplied on invocation.
	KindCLI SourceKind = "cli"
	// KindEnv is a path taken from an environment variable.
	KindEnv SourceKind = "env"
	// KindUser is the user-global directory.
	KindUser SourceKind = "user"
	// KindPackage is the bundled fallback shipped with the binary.
	KindPackage SourceKind = "package"

	// StatusValid marks a confirmed installation root.
	StatusValid Status = "valid"
	// StatusInvalid marks a path that exists but has the wrong shape.
	StatusInvalid Status = "invalid"
	// StatusMissing marks a path that does not exist.
	StatusMissing Status = "missing"
	// StatusNotFound marks a directory with no installation in it.
	StatusNotFound Status = "not-found"

	// VersionLegacy is the older single-file manifest layout.
	VersionLegacy VersionTag = "legacy"
	// VersionCurrent is the _cfg manifest directory layout.
	VersionCurrent VersionTag = "current"
	// VersionUnknown is a directory accepted only because it looks plausible.
	VersionUnknown VersionTag = "unknown"

	// ModeAuto inspects the supplied sources and walks from the project directory.
	ModeAuto Mode = "auto"
	// ModeStrict inspects only the supplied sources.
	ModeStrict Mode = "strict"

	// ResultFound means an active location was selected.
	ResultFound ResultStatus = "found"
	// ResultNotFound means no candidate was valid.
	ResultNotFound ResultStatus = "not-found"
)

var (
	// ErrInvalidSourceKind is returned when a SourceKind value is not recognized.
	ErrInvalidSourceKind = errors.New("invalid source kind")
	// ErrInvalidMode is returned when a Mode value is not recognized.
	ErrInvalidMode = errors.New("invalid discovery mode")
	// ErrLocationInvalid is the sentinel wrapped by LocationInvalidError.
	ErrLocationInvalid = errors.New("location invalid")
	// ErrLocationMissing is the sentinel wrapped by LocationMissingError.
	ErrLocationMissing = errors.New("location missing")
	// ErrNoValidInstallation is the sentinel wrapped by NoValidInstallationError.
	ErrNoValidInstallation = errors.New("no valid installation")

	kindPriority = map[SourceKind]int{
		KindProject: 0,
		KindCLI:     1,
		KindEnv:     2,
		KindUser:    3,
		KindPackage: 4,
	}
)

type (
	// SourceKind identifies where a candidate root came from.
	SourceKind string

	// Status is the outcome of probing one candidate.
	Status string

	// VersionTag identifies the installation layout.
	VersionTag string

	// Mode selects how much searching Resolve performs.
	Mode string

	// ResultStatus summarizes a resolution pass.
	ResultStatus string

	// InvalidSourceKindError is returned when a SourceKind value is not recognized.
	InvalidSourceKindError struct {
		Value SourceKind
	}

	// InvalidModeError is returned when a Mode value is not recognized.
	InvalidModeError struct {
		Value Mode
	}

	// LocationInvalidError describes a path that exists but is not a usable directory.
	LocationInvalidError struct {
		Path   string
		Reason string
	}

	// LocationMissingError describes a path that does not exist.
	LocationMissingError struct {
		Path string
	}

	// NoValidInstallationError is the terminal error raised when every
	// candidate failed. It keeps every checked location for rendering.
	NoValidInstallationError struct {
		Locations []Location
	}

	// Source is one candidate root before probing.
	Source struct {
		Kind SourceKind
		Path string
		// DisplayName is optional; it defaults to the kind and path.
		DisplayName string
	}

	// Location is an inspected candidate. It is never mutated after Resolve
	// returns and is never persisted.
	Location struct {
		Kind         SourceKind
		Priority     int
		DisplayName  string
		OriginalPath string
		// ResolvedRoot is the absolute installation root (the directory that
		// holds module directories and _cfg). Empty unless Status is valid.
		ResolvedRoot string
		// ManifestDir is the absolute _cfg directory, when the layout has one.
		ManifestDir string
		Status      Status
		VersionTag  VersionTag
		// Reason explains a rejection; empty for valid locations.
		Reason string
		// Walked is true when the root was found by searching away from
		// OriginalPath (auto mode only).
		Walked bool
		Cause  error
	}

	// Result is the outcome of a resolution pass. Locations holds every
	// inspected candidate in source order.
	Result struct {
		Mode      Mode
		Locations []Location
		Active    *Location
		Status    ResultStatus
	}
)

// Priority returns the precedence of the kind; lower is more authoritative.
// Unknown kinds sort after every known kind.
func (k SourceKind) Priority() int {
	if p, ok := kindPriority[k]; ok {
		return p
	}
	return len(kindPriority)
}

// Validate returns an error if the SourceKind is not recognized.
func (k SourceKind) Validate() error {
	if _, ok := kindPriority[k]; ok {
		return nil
	}
	return &InvalidSourceKindError{Value: k}
}

func (k SourceKind) String() string { return string(k) }

// Validate returns an error if the Mode is not recognized.
func (m Mode) Validate() error {
	switch m {
	case ModeAuto, ModeStrict:
		return nil
	default:
		return &InvalidModeError{Value: m}
	}
}

func (m Mode) String() string { return string(m) }

func (s Status) String() string { return string(s) }

func (e *InvalidSourceKindError) Error() string {
	return fmt.Sprintf("invalid source kind %q (valid: project, cli, env, user, package)", e.Value)
}

func (e *InvalidSourceKindError) Unwrap() error { return ErrInvalidSourceKind }

func (e *InvalidModeError) Error() string {
	return fmt.Sprintf("invalid discovery mode %q (valid: auto, strict)", e.Value)
}

func (e *InvalidModeError) Unwrap() error { return ErrInvalidMode }

func (e *LocationInvalidError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

func (e *LocationInvalidError) Unwrap() error { return ErrLocationInvalid }

func (e *LocationMissingError) Error() string {
	return fmt.Sprintf("%s: does not exist", e.Path)
}

func (e *LocationMissingError) Unwrap() error { return ErrLocationMissing }

func (e *NoValidInstallationError) Error() string {
	return fmt.Sprintf("no valid installation among %d checked location(s)", len(e.Locations))
}

func (e *NoValidInstallationError) Unwrap() error { return ErrNoValidInstallation }

// IsValid reports whether the location was accepted.
func (l Location) IsValid() bool { return l.Status == StatusValid }

// String renders a one-line summary used in diagnostics.
func (l Location) String() string {
	if l.IsValid() {
		return fmt.Sprintf("%s %s: valid (%s layout at %s)", l.Kind, l.OriginalPath, l.VersionTag, l.ResolvedRoot)
	}
	return fmt.Sprintf("%s %s: %s (%s)", l.Kind, l.OriginalPath, l.Status, l.Reason)
}

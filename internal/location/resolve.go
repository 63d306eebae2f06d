// SPDX-License-Identifier: MPL-2.0

package location

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/bmadx/bmadx/internal/issue"
)

// Resolve inspects every source and selects the active location.
//
// All inspected locations are returned in input order, whatever their status.
// A pass where nothing is valid is not an error: the result has Status
// ResultNotFound and callers that need an installation use RequireActive to
// obtain the terminal error. The only errors returned are an invalid mode
// and context cancellation.
func Resolve(ctx context.Context, sources []Source, mode Mode) (*Result, error) {
	if err := mode.Validate(); err != nil {
		return nil, err
	}

	result := &Result{
		Mode:      mode,
		Locations: make([]Location, 0, len(sources)),
		Status:    ResultNotFound,
	}

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("resolve canceled: %w", err)
		}

		loc := inspect(src)
		if mode == ModeAuto && src.Kind == KindProject && loc.Status == StatusNotFound {
			loc = search(loc)
		}

		slog.Debug("inspected location", "kind", loc.Kind, "path", loc.OriginalPath, "status", loc.Status, "reason", loc.Reason)
		result.Locations = append(result.Locations, loc)
	}

	if active, ok := selectActive(result.Locations); ok {
		result.Active = &active
		result.Status = ResultFound
	}

	return result, nil
}

// search extends a not-found project candidate by walking upward and then into
// nested directories, stopping at the first marker.
func search(loc Location) Location {
	abs, err := filepath.Abs(loc.OriginalPath)
	if err != nil {
		return loc
	}
	if m, ok := walkUp(abs); ok {
		return accept(loc, m, true)
	}
	if m, ok := walkDown(abs); ok {
		return accept(loc, m, true)
	}
	loc.Reason += "; none found in parent or nested directories"
	return loc
}

// selectActive returns the first valid location after a stable sort by
// priority, so equal-priority sources keep their input order.
func selectActive(locations []Location) (Location, bool) {
	valid := make([]Location, 0, len(locations))
	for _, loc := range locations {
		if loc.IsValid() {
			valid = append(valid, loc)
		}
	}
	if len(valid) == 0 {
		return Location{}, false
	}
	slices.SortStableFunc(valid, func(a, b Location) int {
		return a.Priority - b.Priority
	})
	return valid[0], true
}

// Valid returns the valid locations ordered by priority.
func (r *Result) Valid() []Location {
	out := make([]Location, 0, len(r.Locations))
	for _, loc := range r.Locations {
		if loc.IsValid() {
			out = append(out, loc)
		}
	}
	slices.SortStableFunc(out, func(a, b Location) int {
		return a.Priority - b.Priority
	})
	return out
}

// RequireActive returns the active location or the terminal user-facing
// error listing every checked location with its rejection reason.
func (r *Result) RequireActive() (Location, error) {
	if r.Active != nil {
		return *r.Active, nil
	}

	ctx := issue.NewErrorContext().WithOperation("resolve installation")
	if len(r.Locations) == 0 {
		ctx.WithDetail("no candidate locations were supplied")
	}
	for _, loc := range r.Locations {
		ctx.WithDetail(loc.String())
	}
	if r.Mode == ModeStrict {
		ctx.WithSuggestion("Use --mode auto to also search parent and nested directories")
	}
	return Location{}, ctx.
		WithSuggestion("Pass the project directory explicitly with --root").
		WithSuggestion("Set BMAD_ROOT to an installation directory").
		WithIssue(issue.NoInstallationFoundId).
		Wrap(&NoValidInstallationError{Locations: slices.Clone(r.Locations)}).
		BuildError()
}

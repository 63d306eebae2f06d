// SPDX-License-Identifier: MPL-2.0

package location

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bmadx/bmadx/internal/issue"
	"github.com/bmadx/bmadx/internal/testutil"
)

// newInstall creates a current-layout installation under dir/bmad.
func newInstall(t *testing.T, dir string) string {
	t.Helper()
	testutil.WriteTree(t, dir, map[string]string{
		"bmad/_cfg/":                      "",
		"bmad/core/agents/bmad-master.md": "# master",
	})
	return filepath.Join(dir, "bmad")
}

func TestInspect_Statuses(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	testutil.WriteTree(t, base, map[string]string{
		"current/bmad/_cfg/":                         "",
		"flat/_cfg/":                                 "",
		"srclayout/src/bmad/_cfg/":                   "",
		"legacy/.bmad-core/install-manifest.yaml":    "version: 4",
		"legacyflat/install-manifest.yaml":           "version: 4",
		"plausible/agents/pm.md":                     "# pm",
		"plausiblemodule/core/workflows/x/workflow.yaml": "name: x",
		"empty/":                                     "",
		"afile":                                      "not a dir",
	})

	tests := []struct {
		name     string
		path     string
		status   Status
		tag      VersionTag
		rootTail string
	}{
		{"current layout", "current", StatusValid, VersionCurrent, "current/bmad"},
		{"flat cfg", "flat", StatusValid, VersionCurrent, "flat"},
		{"src layout", "srclayout", StatusValid, VersionCurrent, "srclayout/src/bmad"},
		{"legacy hidden", "legacy", StatusValid, VersionLegacy, "legacy/.bmad-core"},
		{"legacy flat", "legacyflat", StatusValid, VersionLegacy, "legacyflat"},
		{"plausible direct", "plausible", StatusValid, VersionUnknown, "plausible"},
		{"plausible module", "plausiblemodule", StatusValid, VersionUnknown, "plausiblemodule"},
		{"empty dir", "empty", StatusNotFound, "", ""},
		{"file is invalid", "afile", StatusInvalid, "", ""},
		{"missing", "nope", StatusMissing, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			loc := inspect(Source{Kind: KindCLI, Path: filepath.Join(base, tt.path)})
			if loc.Status != tt.status {
				t.Fatalf("status = %s, want %s (reason %q)", loc.Status, tt.status, loc.Reason)
			}
			if loc.VersionTag != tt.tag {
				t.Errorf("version tag = %q, want %q", loc.VersionTag, tt.tag)
			}
			if tt.rootTail != "" && loc.ResolvedRoot != filepath.Join(base, filepath.FromSlash(tt.rootTail)) {
				t.Errorf("resolved root = %q, want suffix %q", loc.ResolvedRoot, tt.rootTail)
			}
			if tt.status != StatusValid && loc.Reason == "" {
				t.Error("rejected location should carry a reason")
			}
		})
	}
}

func TestInspect_TypedCauses(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	testutil.WriteTree(t, base, map[string]string{"file": "x"})

	missing := inspect(Source{Kind: KindEnv, Path: filepath.Join(base, "missing")})
	if !errors.Is(missing.Cause, ErrLocationMissing) {
		t.Errorf("missing cause = %v, want ErrLocationMissing", missing.Cause)
	}

	invalid := inspect(Source{Kind: KindEnv, Path: filepath.Join(base, "file")})
	if !errors.Is(invalid.Cause, ErrLocationInvalid) {
		t.Errorf("invalid cause = %v, want ErrLocationInvalid", invalid.Cause)
	}
}

func TestResolve_PriorityInvariant(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	kinds := []SourceKind{KindPackage, KindUser, KindEnv, KindCLI, KindProject}
	paths := make(map[SourceKind]string)
	for _, k := range kinds {
		dir := filepath.Join(base, string(k))
		newInstall(t, dir)
		paths[k] = dir
	}

	orders := [][]SourceKind{
		{KindPackage, KindUser, KindEnv, KindCLI, KindProject},
		{KindUser, KindProject, KindPackage, KindCLI, KindEnv},
		{KindEnv, KindCLI, KindUser},
		{KindPackage, KindUser},
	}
	for _, order := range orders {
		var sources []Source
		best := KindPackage
		for _, k := range order {
			sources = append(sources, Source{Kind: k, Path: paths[k]})
			if k.Priority() < best.Priority() {
				best = k
			}
		}

		res, err := Resolve(context.Background(), sources, ModeStrict)
		if err != nil {
			t.Fatalf("Resolve() error: %v", err)
		}
		if res.Active == nil {
			t.Fatalf("order %v: no active location", order)
		}
		if res.Active.Kind != best {
			t.Errorf("order %v: active kind = %s, want %s", order, res.Active.Kind, best)
		}
		if len(res.Locations) != len(order) {
			t.Errorf("order %v: %d locations retained, want %d", order, len(res.Locations), len(order))
		}
	}
}

func TestResolve_EqualPriorityKeepsInputOrder(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	first := filepath.Join(base, "first")
	second := filepath.Join(base, "second")
	newInstall(t, first)
	newInstall(t, second)

	res, err := Resolve(context.Background(), []Source{
		{Kind: KindCLI, Path: first},
		{Kind: KindCLI, Path: second},
	}, ModeStrict)
	if err != nil {
		t.Fatal(err)
	}
	if res.Active.OriginalPath != first {
		t.Errorf("active = %s, want %s", res.Active.OriginalPath, first)
	}
}

func TestResolve_StrictNoSources(t *testing.T) {
	t.Parallel()

	res, err := Resolve(context.Background(), nil, ModeStrict)
	if err != nil {
		t.Fatalf("Resolve() should not error, got %v", err)
	}
	if res.Status != ResultNotFound {
		t.Errorf("status = %s, want %s", res.Status, ResultNotFound)
	}
	if len(res.Valid()) != 0 || res.Active != nil {
		t.Error("expected zero valid locations")
	}
}

func TestResolve_StrictDoesNotWalk(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	newInstall(t, filepath.Join(base, "nested"))

	res, err := Resolve(context.Background(), []Source{{Kind: KindProject, Path: base}}, ModeStrict)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != ResultNotFound {
		t.Fatalf("strict mode found %+v, want not-found", res.Active)
	}
	if res.Locations[0].Status != StatusNotFound {
		t.Errorf("location status = %s, want not-found", res.Locations[0].Status)
	}
}

func TestResolve_AutoWalksNested(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	root := newInstall(t, filepath.Join(base, "apps", "web"))
	testutil.WriteTree(t, base, map[string]string{"node_modules/pkg/bmad/_cfg/": ""})

	res, err := Resolve(context.Background(), []Source{{Kind: KindProject, Path: base}}, ModeAuto)
	if err != nil {
		t.Fatal(err)
	}
	if res.Active == nil {
		t.Fatalf("auto mode found nothing: %+v", res.Locations)
	}
	if res.Active.ResolvedRoot != root {
		t.Errorf("resolved root = %s, want %s", res.Active.ResolvedRoot, root)
	}
	if !res.Active.Walked {
		t.Error("walked flag should be set")
	}
}

func TestResolve_AutoWalksUpward(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	root := newInstall(t, base)
	deep := filepath.Join(base, "src", "pkg", "inner")
	testutil.MustMkdirAll(t, deep)

	res, err := Resolve(context.Background(), []Source{{Kind: KindProject, Path: deep}}, ModeAuto)
	if err != nil {
		t.Fatal(err)
	}
	if res.Active == nil || res.Active.ResolvedRoot != root {
		t.Fatalf("active = %+v, want root %s", res.Active, root)
	}
}

// Not parallel: changes the working directory.
func TestResolve_RelativePath(t *testing.T) {
	base := t.TempDir()
	root := newInstall(t, base)
	defer testutil.MustChdir(t, base)()

	res, err := Resolve(context.Background(), []Source{{Kind: KindProject, Path: "."}}, ModeStrict)
	if err != nil {
		t.Fatal(err)
	}
	if res.Active == nil {
		t.Fatalf("relative project path not resolved: %+v", res.Locations)
	}
	got, _ := filepath.EvalSymlinks(res.Active.ResolvedRoot)
	want, _ := filepath.EvalSymlinks(root)
	if got != want {
		t.Errorf("resolved root = %s, want %s", got, want)
	}
}

func TestResolve_InvalidMode(t *testing.T) {
	t.Parallel()

	_, err := Resolve(context.Background(), nil, Mode("eager"))
	if !errors.Is(err, ErrInvalidMode) {
		t.Errorf("error = %v, want ErrInvalidMode", err)
	}
}

func TestResolve_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Resolve(ctx, []Source{{Kind: KindCLI, Path: t.TempDir()}}, ModeStrict)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestRequireActive_ListsEveryLocation(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	testutil.WriteTree(t, base, map[string]string{"file": "x", "empty/": ""})

	res, err := Resolve(context.Background(), []Source{
		{Kind: KindProject, Path: filepath.Join(base, "empty")},
		{Kind: KindCLI, Path: filepath.Join(base, "file")},
		{Kind: KindUser, Path: filepath.Join(base, "missing")},
	}, ModeStrict)
	if err != nil {
		t.Fatal(err)
	}

	_, err = res.RequireActive()
	if !errors.Is(err, ErrNoValidInstallation) {
		t.Fatalf("error = %v, want ErrNoValidInstallation", err)
	}

	var noValid *NoValidInstallationError
	if !errors.As(err, &noValid) || len(noValid.Locations) != 3 {
		t.Fatalf("expected NoValidInstallationError with 3 locations, got %v", err)
	}

	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatal("expected an ActionableError")
	}
	if id, _ := issue.IssueOf(err); id != issue.NoInstallationFoundId {
		t.Errorf("IssueOf() = %v, want NoInstallationFoundId", id)
	}
	out := ae.Format(false)
	for _, want := range []string{"not-found", "not a directory", "does not exist"} {
		if !strings.Contains(out, want) {
			t.Errorf("formatted error missing %q:\n%s", want, out)
		}
	}
}

func TestSourceKind_Validate(t *testing.T) {
	t.Parallel()

	for _, k := range []SourceKind{KindProject, KindCLI, KindEnv, KindUser, KindPackage} {
		if err := k.Validate(); err != nil {
			t.Errorf("%s.Validate() = %v", k, err)
		}
	}
	if err := SourceKind("cloud").Validate(); !errors.Is(err, ErrInvalidSourceKind) {
		t.Errorf("unknown kind error = %v", err)
	}
	if SourceKind("cloud").Priority() <= KindPackage.Priority() {
		t.Error("unknown kinds must sort after every known kind")
	}
}

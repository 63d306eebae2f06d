// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/bmadx/bmadx/internal/location"
	"github.com/bmadx/bmadx/internal/testutil"
)

const agentHeader = "name,displayName,title,description,module,path\n"

func newLocation(t *testing.T, files map[string]string) location.Location {
	t.Helper()
	root := filepath.Join(t.TempDir(), "bmad")
	testutil.WriteTree(t, root, files)
	return location.Location{
		Kind:         location.KindProject,
		OriginalPath: filepath.Dir(root),
		ResolvedRoot: root,
		ManifestDir:  filepath.Join(root, location.ManifestDirName),
		Status:       location.StatusValid,
		VersionTag:   location.VersionCurrent,
	}
}

func statusOf(t *testing.T, records []Record, rel string) Status {
	t.Helper()
	for _, r := range records {
		if r.ModuleRelativePath == rel {
			return r.Status
		}
	}
	t.Fatalf("no record for %s in %+v", rel, records)
	return ""
}

func TestReconcile_WorkflowStatuses(t *testing.T) {
	t.Parallel()

	loc := newLocation(t, map[string]string{
		"_cfg/workflow-manifest.csv":       "name,description,module,path\nfoo,Foo,core,bmad/core/workflows/foo\n",
		"core/workflows/bar/workflow.yaml": "name: bar\n",
	})

	set, err := Reconcile(context.Background(), loc)
	if err != nil {
		t.Fatalf("Reconcile() error: %v", err)
	}
	if got := statusOf(t, set.Workflows, "core/workflows/foo/workflow.yaml"); got != StatusNoFileFound {
		t.Errorf("foo status = %s, want %s", got, StatusNoFileFound)
	}
	if got := statusOf(t, set.Workflows, "core/workflows/bar/workflow.yaml"); got != StatusNotInManifest {
		t.Errorf("bar status = %s, want %s", got, StatusNotInManifest)
	}
}

func TestReconcile_Completeness(t *testing.T) {
	t.Parallel()

	loc := newLocation(t, map[string]string{
		"_cfg/agent-manifest.csv": agentHeader +
			`"pm","Pam","Product Manager","Plans","bmm","bmad/bmm/agents/pm.md"` + "\n" +
			`"ghost","Ghost","","","bmm","bmad/bmm/agents/ghost.md"` + "\n",
		"bmm/agents/pm.md":                  "# pm",
		"bmm/agents/dev.md":                 "# dev",
		"bmm/agents/dev.customize.md":       "ignored",
		"core/agents/bmad-master.md":        "# master",
		"_cfg/agents/bmm-pm.customize.yaml": "persona: {}",
		".hidden/agents/secret.md":          "# hidden",
	})

	set, err := Reconcile(context.Background(), loc)
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]Status{
		"bmm/agents/pm.md":           StatusVerified,
		"bmm/agents/ghost.md":        StatusNoFileFound,
		"bmm/agents/dev.md":          StatusNotInManifest,
		"core/agents/bmad-master.md": StatusNotInManifest,
	}
	if len(set.Agents) != len(want) {
		t.Fatalf("got %d agents, want %d: %+v", len(set.Agents), len(want), set.Agents)
	}
	for rel, status := range want {
		if got := statusOf(t, set.Agents, rel); got != status {
			t.Errorf("%s status = %s, want %s", rel, got, status)
		}
	}

	pm, ok := set.Find(KindAgent, "pm")
	if !ok {
		t.Fatal("Find(pm) failed")
	}
	if pm.DisplayName != "Pam" || pm.Title != "Product Manager" || pm.BmadRelativePath != "bmad/bmm/agents/pm.md" {
		t.Errorf("manifest metadata lost: %+v", pm)
	}

	// Output order is module, then name.
	var order []string
	for _, r := range set.Agents {
		order = append(order, r.QualifiedName())
	}
	wantOrder := []string{"bmm/dev", "bmm/ghost", "bmm/pm", "core/bmad-master"}
	if !reflect.DeepEqual(order, wantOrder) {
		t.Errorf("order = %v, want %v", order, wantOrder)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	t.Parallel()

	loc := newLocation(t, map[string]string{
		"_cfg/agent-manifest.csv": agentHeader + "pm,,,,bmm,bmad/bmm/agents/pm.md\n",
		"_cfg/task-manifest.csv":  "name,module,path\nbroken,core,\"unterminated\n",
		"bmm/agents/pm.md":        "# pm",
		"bmm/config.yaml":         "version: 6.0.0\n",
		"core/tasks/index.xml":    "<task/>",
	})

	first, err := Reconcile(context.Background(), loc)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Reconcile(context.Background(), loc)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("reconciliation is not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestReconcile_MalformedManifestKeepsScan(t *testing.T) {
	t.Parallel()

	loc := newLocation(t, map[string]string{
		"_cfg/agent-manifest.csv": "name,module,path\n\"pm,bmm,bmad/bmm/agents/pm.md\n",
		"bmm/agents/pm.md":        "# pm",
	})

	set, err := Reconcile(context.Background(), loc)
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Agents) != 1 || set.Agents[0].Status != StatusNotInManifest {
		t.Fatalf("expected the scanned agent only, got %+v", set.Agents)
	}

	var parseErr *ManifestParseError
	found := false
	for _, d := range set.Diagnostics {
		if d.Code == CodeManifestParseFailed && errors.As(d.Cause, &parseErr) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a %s diagnostic, got %+v", CodeManifestParseFailed, set.Diagnostics)
	}
	if !errors.Is(parseErr, ErrManifestParse) {
		t.Error("ManifestParseError should wrap ErrManifestParse")
	}
}

func TestReconcile_RowsWithoutNameOrPath(t *testing.T) {
	t.Parallel()

	loc := newLocation(t, map[string]string{
		"_cfg/agent-manifest.csv": agentHeader +
			",,,,bmm,bmad/bmm/agents/pm.md\n" +
			",,,,,\n" +
			"dev,,,,bmm,\n" +
			"escape,,,,bmm,../../etc/passwd\n",
	})

	set, err := Reconcile(context.Background(), loc)
	if err != nil {
		t.Fatal(err)
	}
	if len(set.Agents) != 0 {
		t.Errorf("expected no agents, got %+v", set.Agents)
	}
	skipped := 0
	for _, d := range set.Diagnostics {
		if d.Code == CodeManifestRowSkipped {
			skipped++
		}
	}
	if skipped != 3 {
		t.Errorf("skipped rows = %d, want 3 (blank row is silent): %+v", skipped, set.Diagnostics)
	}
}

func TestReconcile_Modules(t *testing.T) {
	t.Parallel()

	loc := newLocation(t, map[string]string{
		"bmm/config.yaml":     "version: 6.0.0-alpha\nname: bmm\n",
		"bmm/agents/pm.md":    "# pm",
		"cis/config.yaml":     "version: [unclosed\n",
		"core/tasks/index.md": "# index",
		"docs/readme.md":      "not a module",
	})

	set, err := Reconcile(context.Background(), loc)
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, m := range set.Modules {
		names = append(names, m.Name)
	}
	if want := []string{"bmm", "cis", "core"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("modules = %v, want %v", names, want)
	}

	bmm, _ := set.Module("bmm")
	if bmm.Version != "6.0.0-alpha" || bmm.VersionTag != location.VersionCurrent {
		t.Errorf("bmm = %+v", bmm)
	}
	cis, _ := set.Module("cis")
	if len(cis.Errors) == 0 || cis.VersionTag != location.VersionUnknown {
		t.Errorf("cis should record a config error: %+v", cis)
	}
	core, _ := set.Module("core")
	if core.ConfigPath != "" || core.VersionTag != location.VersionUnknown {
		t.Errorf("core has no config: %+v", core)
	}
}

func TestReconcile_RejectsInvalidLocation(t *testing.T) {
	t.Parallel()

	_, err := Reconcile(context.Background(), location.Location{Status: location.StatusNotFound})
	if !errors.Is(err, ErrLocationNotValid) {
		t.Errorf("error = %v, want ErrLocationNotValid", err)
	}
}

func TestReconciler_ReloadSwapsAndNotifies(t *testing.T) {
	t.Parallel()

	loc := newLocation(t, map[string]string{"core/agents/a.md": "# a"})
	r := NewReconciler(loc)
	if r.Current() != nil {
		t.Fatal("Current() should be nil before the first reload")
	}

	var calls atomic.Int32
	r.OnReload(func(*Set) { calls.Add(1) })

	first, err := r.Ensure(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Agents) != 1 {
		t.Fatalf("agents = %d, want 1", len(first.Agents))
	}

	testutil.MustWriteFile(t, filepath.Join(loc.ResolvedRoot, "core", "agents", "b.md"), "# b")
	second, err := r.Reload(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(second.Agents) != 2 || r.Current() != second {
		t.Errorf("reload did not swap in the new set")
	}
	if len(first.Agents) != 1 {
		t.Error("previous set must not be mutated by a reload")
	}
	if calls.Load() != 2 {
		t.Errorf("listener calls = %d, want 2", calls.Load())
	}
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		kind    Kind
		want    string
		wantErr bool
	}{
		{"/bmad/core/agents/x.md", KindAgent, "core/agents/x.md", false},
		{"bmad/core/agents/x.md", KindAgent, "core/agents/x.md", false},
		{"core/agents/x.md", KindAgent, "core/agents/x.md", false},
		{"{project-root}/bmad/core/tasks/t.xml", KindTask, "core/tasks/t.xml", false},
		{"bmad/core/workflows/foo", KindWorkflow, "core/workflows/foo/workflow.yaml", false},
		{"bmad/core/workflows/foo/workflow.yaml", KindWorkflow, "core/workflows/foo/workflow.yaml", false},
		{"bmad/../../etc/passwd", KindAgent, "", true},
		{"/", KindAgent, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			got, err := normalizePath(tt.raw, tt.kind)
			if (err != nil) != tt.wantErr {
				t.Fatalf("normalizePath(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

// resolveStrict resolves dir the way the CLI does and returns the active
// location.
func resolveStrict(t *testing.T, dir string) location.Location {
	t.Helper()
	res, err := location.Resolve(context.Background(), []location.Source{{Kind: location.KindCLI, Path: dir}}, location.ModeStrict)
	if err != nil {
		t.Fatal(err)
	}
	loc, err := res.RequireActive()
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

func TestReconcile_RootLevelLayouts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		files      map[string]string
		wantTag    location.VersionTag
		wantPrefix string
	}{
		{
			name: "plausible directory",
			files: map[string]string{
				"agents/pm.md":                "# pm",
				"workflows/bar/workflow.yaml": "name: bar\n",
				"tasks/index.xml":             "<task/>",
			},
			wantTag:    location.VersionUnknown,
			wantPrefix: "bmad/",
		},
		{
			name: "legacy layout",
			files: map[string]string{
				".bmad-core/install-manifest.yaml":         "version: 4.0.0\n",
				".bmad-core/agents/pm.md":                  "# pm",
				".bmad-core/workflows/bar/workflow.yaml":   "name: bar\n",
				".bmad-core/tasks/index.xml":               "<task/>",
				".bmad-core/_cfg/agents/pm.customize.yaml": "persona: {}",
			},
			wantTag:    location.VersionLegacy,
			wantPrefix: ".bmad-core/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			testutil.WriteTree(t, dir, tt.files)
			loc := resolveStrict(t, dir)
			if loc.VersionTag != tt.wantTag {
				t.Fatalf("version tag = %s, want %s", loc.VersionTag, tt.wantTag)
			}

			set, err := Reconcile(context.Background(), loc)
			if err != nil {
				t.Fatal(err)
			}
			if len(set.Agents) != 1 || len(set.Workflows) != 1 || len(set.Tasks) != 1 {
				t.Fatalf("agents=%d workflows=%d tasks=%d, want 1 each", len(set.Agents), len(set.Workflows), len(set.Tasks))
			}

			pm := set.Agents[0]
			if pm.Name != "pm" || pm.ModuleName != "" || pm.Status != StatusNotInManifest {
				t.Errorf("agent = %+v", pm)
			}
			if pm.ModuleRelativePath != "agents/pm.md" || pm.BmadRelativePath != tt.wantPrefix+"agents/pm.md" {
				t.Errorf("paths = %s, %s", pm.ModuleRelativePath, pm.BmadRelativePath)
			}
			if got := set.Workflows[0]; got.Name != "bar" || got.ModuleRelativePath != "workflows/bar/workflow.yaml" {
				t.Errorf("workflow = %+v", got)
			}
		})
	}
}

func TestReconcile_ModuleAndRootLevelTogether(t *testing.T) {
	t.Parallel()

	loc := newLocation(t, map[string]string{
		"agents/solo.md":                            "# solo",
		"bmm/agents/pm.md":                          "# pm",
		"workflows/inner/workflows/w/workflow.yaml": "name: w\n",
	})

	set, err := Reconcile(context.Background(), loc)
	if err != nil {
		t.Fatal(err)
	}

	var order []string
	for _, r := range set.Agents {
		order = append(order, r.QualifiedName())
	}
	if want := []string{"solo", "bmm/pm"}; !reflect.DeepEqual(order, want) {
		t.Errorf("agents = %v, want %v", order, want)
	}
	// A root-level content directory is never treated as a module.
	if len(set.Workflows) != 1 || set.Workflows[0].ModuleName != "" || set.Workflows[0].Name != "w" {
		t.Errorf("workflows = %+v", set.Workflows)
	}
}

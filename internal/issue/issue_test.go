// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func TestGet_AllIdsRegistered(t *testing.T) {
	t.Parallel()

	ids := []Id{
		NoInstallationFoundId,
		ManifestParseFailedId,
		PathTraversalId,
		RemoteAliasUnknownId,
		RemoteCloneFailedId,
		AmbiguousMatchId,
		AgentNotFoundId,
		WorkflowNotFoundId,
		ConfigLoadFailedId,
	}

	for _, id := range ids {
		iss := Get(id)
		if iss == nil {
			t.Fatalf("Get(%d) returned nil", id)
		}
		if iss.Id() != id {
			t.Errorf("Get(%d).Id() = %d", id, iss.Id())
		}
		if strings.TrimSpace(string(iss.MarkdownMsg())) == "" {
			t.Errorf("issue %d has empty markdown", id)
		}
	}

	if len(Values()) != len(ids) {
		t.Errorf("Values() returned %d issues, want %d", len(Values()), len(ids))
	}
}

func TestValues_SortedById(t *testing.T) {
	t.Parallel()

	values := Values()
	for i := 1; i < len(values); i++ {
		if values[i-1].Id() >= values[i].Id() {
			t.Fatalf("Values() not sorted at %d", i)
		}
	}
}

func TestIssue_Render(t *testing.T) {
	t.Parallel()

	out, err := Get(NoInstallationFoundId).Render("notty")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(out, "No BMAD installation found") {
		t.Errorf("rendered output missing title:\n%s", out)
	}
}

func TestGet_Unknown(t *testing.T) {
	t.Parallel()

	if Get(Id(9999)) != nil {
		t.Error("Get() for unknown id should return nil")
	}
}

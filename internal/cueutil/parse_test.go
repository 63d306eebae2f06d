// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"strings"
	"testing"
)

const testSchema = `
#Source: {
	alias: string & =~"^[a-z][a-z0-9-]*$"
	repo:  string
	ref?:  string
}
#Doc: {
	name:  string
	size?: int & >=1
	sources?: [...#Source]
}
`

type testDoc struct {
	Name    string `json:"name"`
	Size    int    `json:"size,omitempty"`
	Sources []struct {
		Alias string `json:"alias"`
		Repo  string `json:"repo"`
	} `json:"sources,omitempty"`
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     string
		wantErr  bool
		wantPath string
	}{
		{"valid", `name: "x", size: 2, sources: [{alias: "bmad", repo: "r"}]`, false, ""},
		{"optional omitted", `name: "x"`, false, ""},
		{"wrong type", `name: 3`, true, "name"},
		{"constraint", `name: "x", size: 0`, true, "size"},
		{"nested path", `name: "x", sources: [{alias: "ok", repo: "r"}, {alias: "Bad", repo: "r"}]`, true, "sources[1].alias"},
		{"unknown field", `name: "x", colour: "red"`, true, "colour"},
		{"syntax", `name: "x`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc, err := Decode[testDoc](testSchema, []byte(tt.data), "#Doc", WithFilename("doc.cue"), WithConcrete(false))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				if !strings.Contains(err.Error(), "doc.cue") {
					t.Errorf("error should name the file: %v", err)
				}
				if tt.wantPath != "" && !strings.Contains(err.Error(), tt.wantPath) {
					t.Errorf("error should contain path %q: %v", tt.wantPath, err)
				}
				return
			}
			if doc.Name != "x" {
				t.Errorf("Name = %q", doc.Name)
			}
		})
	}
}

func TestDecodeMap(t *testing.T) {
	t.Parallel()

	m, err := DecodeMap(testSchema, []byte(`name: "x", sources: [{alias: "bmad", repo: "r"}]`), "#Doc", WithConcrete(false))
	if err != nil {
		t.Fatal(err)
	}
	if m["name"] != "x" {
		t.Errorf("name = %v", m["name"])
	}
	if sources, ok := m["sources"].([]any); !ok || len(sources) != 1 {
		t.Errorf("sources = %#v", m["sources"])
	}
}

func TestCheckFileSize(t *testing.T) {
	t.Parallel()

	if err := CheckFileSize(make([]byte, 10), 10, "f.cue"); err != nil {
		t.Errorf("at the limit: %v", err)
	}
	if err := CheckFileSize(make([]byte, 11), 10, "f.cue"); !errors.Is(err, ErrTooLarge) {
		t.Errorf("over the limit: %v", err)
	}
	if _, err := Decode[testDoc](testSchema, []byte(`name: "x"`), "#Doc", WithMaxFileSize(3)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("Decode over the limit: %v", err)
	}
}

func TestFormatPath(t *testing.T) {
	t.Parallel()

	tests := map[string][]string{
		"":                      nil,
		"name":                  {"name"},
		"sources[0].alias":      {"sources", "0", "alias"},
		"ranking.module_boosts": {"ranking", "module_boosts"},
	}
	for want, in := range tests {
		if got := formatPath(in); got != want {
			t.Errorf("formatPath(%v) = %q, want %q", in, got, want)
		}
	}
}

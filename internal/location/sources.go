// SPDX-License-Identifier: MPL-2.0

package location

import (
	"os"
	"path/filepath"
)

const (
	// DefaultEnvVar names the environment variable holding an installation path.
	DefaultEnvVar = "BMAD_ROOT"
	// DefaultUserDirName is the user-global directory under the home directory.
	DefaultUserDirName = ".bmad"
)

// SourceOptions controls DefaultSources. Nil functions fall back to the os
// package so tests can inject a fake environment without touching process state.
type SourceOptions struct {
	// ExplicitPaths are paths supplied on invocation, in the order given.
	ExplicitPaths []string
	// EnvVar overrides DefaultEnvVar.
	EnvVar string
	// UserRoot overrides ~/.bmad.
	UserRoot string
	// PackageRoot is the bundled fallback; skipped when empty.
	PackageRoot string
	// SkipProject omits the working directory candidate.
	SkipProject bool

	Getwd   func() (string, error)
	Getenv  func(string) string
	HomeDir func() (string, error)
}

// DefaultSources assembles the candidate list for one resolution pass.
// Sources whose value cannot be determined (unset env var, unknown home
// directory) are omitted rather than reported as missing.
func DefaultSources(opts SourceOptions) []Source {
	getwd := opts.Getwd
	if getwd == nil {
		getwd = os.Getwd
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	homeDir := opts.HomeDir
	if homeDir == nil {
		homeDir = os.UserHomeDir
	}
	envVar := opts.EnvVar
	if envVar == "" {
		envVar = DefaultEnvVar
	}

	var sources []Source

	if !opts.SkipProject {
		if wd, err := getwd(); err == nil {
			sources = append(sources, Source{Kind: KindProject, Path: wd, DisplayName: "project directory"})
		}
	}

	for _, p := range opts.ExplicitPaths {
		sources = append(sources, Source{Kind: KindCLI, Path: p, DisplayName: "--root " + p})
	}

	if p := getenv(envVar); p != "" {
		sources = append(sources, Source{Kind: KindEnv, Path: p, DisplayName: "$" + envVar})
	}

	userRoot := opts.UserRoot
	if userRoot == "" {
		if home, err := homeDir(); err == nil {
			userRoot = filepath.Join(home, DefaultUserDirName)
		}
	}
	if userRoot != "" {
		sources = append(sources, Source{Kind: KindUser, Path: userRoot, DisplayName: "user directory"})
	}

	if opts.PackageRoot != "" {
		sources = append(sources, Source{Kind: KindPackage, Path: opts.PackageRoot, DisplayName: "packaged fallback"})
	}

	return sources
}

// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	// ProtocolHTTPS clones over https.
	ProtocolHTTPS Protocol = "https"
	// ProtocolSSH clones over ssh.
	ProtocolSSH Protocol = "ssh"
)

var (
	// ErrAliasUnknown is the sentinel wrapped by AliasUnknownError.
	ErrAliasUnknown = errors.New("unknown remote alias")
	// ErrInvalidSourceSpec is returned when a registry entry is incomplete.
	ErrInvalidSourceSpec = errors.New("invalid remote source")
)

type (
	// Protocol selects how a repository URL is rendered.
	Protocol string

	// SourceSpec describes one aliased repository.
	SourceSpec struct {
		Alias    string
		Protocol Protocol
		Host     string
		Org      string
		Repo     string
		// Ref is a branch, tag, or commit; empty means the remote HEAD.
		Ref string
		// BaseSubpath is prepended to every requested subpath.
		BaseSubpath string
	}

	// Registry maps aliases to repositories.
	Registry struct {
		specs map[string]SourceSpec
	}

	// AliasUnknownError lists the aliases that do exist.
	AliasUnknownError struct {
		Alias string
		Known []string
	}
)

func (e *AliasUnknownError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("unknown remote alias %q (no remote sources configured)", e.Alias)
	}
	return fmt.Sprintf("unknown remote alias %q (known: %s)", e.Alias, strings.Join(e.Known, ", "))
}

func (e *AliasUnknownError) Unwrap() error { return ErrAliasUnknown }

// Validate checks that the spec can be turned into a URL.
func (s SourceSpec) Validate() error {
	var problems []string
	if !aliasPattern.MatchString(s.Alias) {
		problems = append(problems, fmt.Sprintf("alias %q must match %s", s.Alias, aliasPattern))
	}
	switch s.Protocol {
	case ProtocolHTTPS, ProtocolSSH, "":
	default:
		problems = append(problems, fmt.Sprintf("protocol %q (valid: https, ssh)", s.Protocol))
	}
	if s.Host == "" || s.Org == "" || s.Repo == "" {
		problems = append(problems, "host, org, and repo are required")
	}
	if slices.Contains(strings.Split(s.BaseSubpath, "/"), "..") {
		problems = append(problems, "base subpath may not contain '..'")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s: %s", ErrInvalidSourceSpec, s.Alias, strings.Join(problems, "; "))
	}
	return nil
}

// URL renders the clone URL.
func (s SourceSpec) URL() string {
	repo := strings.TrimSuffix(s.Repo, ".git")
	if s.Protocol == ProtocolSSH {
		return fmt.Sprintf("git@%s:%s/%s.git", s.Host, s.Org, repo)
	}
	return fmt.Sprintf("https://%s/%s/%s.git", s.Host, s.Org, repo)
}

// NewRegistry validates specs and indexes them by alias. A later spec with
// the same alias replaces an earlier one.
func NewRegistry(specs ...SourceSpec) (*Registry, error) {
	r := &Registry{specs: make(map[string]SourceSpec, len(specs))}
	var errs []error
	for _, s := range specs {
		if s.Protocol == "" {
			s.Protocol = ProtocolHTTPS
		}
		s.BaseSubpath = strings.Trim(s.BaseSubpath, "/")
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		r.specs[s.Alias] = s
	}
	return r, errors.Join(errs...)
}

// Lookup returns the spec registered for alias.
func (r *Registry) Lookup(alias string) (SourceSpec, error) {
	if s, ok := r.specs[alias]; ok {
		return s, nil
	}
	return SourceSpec{}, &AliasUnknownError{Alias: alias, Known: r.Aliases()}
}

// Aliases returns every registered alias, sorted.
func (r *Registry) Aliases() []string {
	out := make([]string, 0, len(r.specs))
	for a := range r.specs {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

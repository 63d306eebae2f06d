// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
)

var (
	// ErrMalformedRef is the sentinel wrapped by MalformedRefError.
	ErrMalformedRef = errors.New("malformed remote reference")

	aliasPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
)

type (
	// Ref is a parsed "@alias:subpath" reference.
	Ref struct {
		Alias   string
		Subpath string
	}

	// MalformedRefError is returned by ParseRef before any I/O happens.
	MalformedRefError struct {
		Input  string
		Reason string
	}
)

func (e *MalformedRefError) Error() string {
	return fmt.Sprintf("malformed remote reference %q: %s (expected @alias:path)", e.Input, e.Reason)
}

func (e *MalformedRefError) Unwrap() error { return ErrMalformedRef }

// IsRef reports whether s has the shape of a remote reference.
func IsRef(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "@")
}

// ParseRef parses "@alias:subpath". The subpath is slash separated,
// relative, and may not climb out of the repository.
func ParseRef(s string) (Ref, error) {
	raw := strings.TrimSpace(s)
	rest, ok := strings.CutPrefix(raw, "@")
	if !ok {
		return Ref{}, &MalformedRefError{Input: s, Reason: "missing leading @"}
	}
	alias, sub, ok := strings.Cut(rest, ":")
	if !ok {
		return Ref{}, &MalformedRefError{Input: s, Reason: "missing ':' separator"}
	}
	if alias == "" {
		return Ref{}, &MalformedRefError{Input: s, Reason: "empty alias"}
	}
	if !aliasPattern.MatchString(alias) {
		return Ref{}, &MalformedRefError{Input: s, Reason: fmt.Sprintf("alias %q must match %s", alias, aliasPattern)}
	}

	sub = strings.Trim(strings.ReplaceAll(sub, "\\", "/"), "/")
	if sub == "" {
		return Ref{}, &MalformedRefError{Input: s, Reason: "empty path"}
	}
	for _, seg := range strings.Split(sub, "/") {
		if seg == ".." {
			return Ref{}, &MalformedRefError{Input: s, Reason: "path may not contain '..'"}
		}
	}

	return Ref{Alias: alias, Subpath: path.Clean(sub)}, nil
}

func (r Ref) String() string {
	return "@" + r.Alias + ":" + r.Subpath
}

// SPDX-License-Identifier: MPL-2.0

package filereader

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrPathTraversal is the sentinel wrapped by PathTraversalError.
	ErrPathTraversal = errors.New("path escapes allowed roots")
	// ErrFileRead is the sentinel wrapped by FileReadError.
	ErrFileRead = errors.New("file read failed")
	// ErrNoRoots is returned when a Reader has no allowed roots.
	ErrNoRoots = errors.New("no allowed roots configured")
)

type (
	// Reader reads text files that live under one of its allowed roots.
	// Containment is checked on the fully resolved path, so a symlink that
	// points outside every root is rejected.
	Reader struct {
		roots []string
	}

	// PathTraversalError is returned when a requested path resolves outside
	// every allowed root. It is never downgraded to a not-found result.
	PathTraversalError struct {
		Path  string
		Roots []string
	}

	// FileReadError wraps an I/O failure for a contained path.
	FileReadError struct {
		Path  string
		Cause error
	}
)

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("path %q is outside the allowed roots (%s)", e.Path, strings.Join(e.Roots, ", "))
}

func (e *PathTraversalError) Unwrap() error { return ErrPathTraversal }

func (e *FileReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Cause)
}

// Unwrap exposes both the sentinel and the underlying cause, so
// errors.Is(err, fs.ErrNotExist) works for missing files.
func (e *FileReadError) Unwrap() []error { return []error{ErrFileRead, e.Cause} }

// New creates a Reader limited to roots. Empty roots are ignored; roots are
// made absolute and symlink-resolved when they exist.
func New(roots ...string) *Reader {
	r := &Reader{}
	for _, root := range roots {
		if root == "" {
			continue
		}
		r.roots = append(r.roots, canonical(root))
	}
	return r
}

// Roots returns the canonical allowed roots.
func (r *Reader) Roots() []string {
	return append([]string(nil), r.roots...)
}

// WithRoot returns a Reader that additionally allows root.
func (r *Reader) WithRoot(root string) *Reader {
	return New(append(r.Roots(), root)...)
}

// Resolve returns the canonical path for p after checking containment.
// Relative paths are taken relative to the first root.
func (r *Reader) Resolve(p string) (string, error) {
	if len(r.roots) == 0 {
		return "", ErrNoRoots
	}

	full := p
	if !filepath.IsAbs(full) {
		full = filepath.Join(r.roots[0], filepath.FromSlash(p))
	}
	full = filepath.Clean(full)

	resolved, err := evalExisting(full)
	if err != nil {
		return "", &FileReadError{Path: p, Cause: err}
	}

	for _, root := range r.roots {
		if within(root, resolved) {
			return resolved, nil
		}
	}

	slog.Warn("blocked read outside allowed roots", "path", p, "resolved", resolved)
	return "", &PathTraversalError{Path: p, Roots: r.Roots()}
}

// ReadFile returns the text content of p.
func (r *Reader) ReadFile(p string) (string, error) {
	resolved, err := r.Resolve(p)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", &FileReadError{Path: p, Cause: err}
	}
	return string(data), nil
}

// Exists reports whether p is a regular file inside an allowed root.
func (r *Reader) Exists(p string) bool {
	resolved, err := r.Resolve(p)
	if err != nil {
		return false
	}
	info, err := os.Stat(resolved)
	return err == nil && info.Mode().IsRegular()
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// evalExisting resolves symlinks in the longest existing prefix of p and
// re-appends the missing tail.
func evalExisting(p string) (string, error) {
	var tail []string
	cur := p
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{real}, tail...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
}

func canonical(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = filepath.Clean(p)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	}
	return abs
}

// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

var (
	// ErrInvalid is the sentinel wrapped by ValidationError.
	ErrInvalid = errors.New("cue validation failed")
	// ErrTooLarge is returned when input exceeds the size limit.
	ErrTooLarge = errors.New("cue input too large")
)

type (
	// Violation is one schema violation.
	Violation struct {
		// Path is the field path, e.g. "remote.sources[0].alias".
		Path    string
		Message string
	}

	// ValidationError lists every violation found in one file.
	ValidationError struct {
		File       string
		Violations []Violation
	}
)

func (e *ValidationError) Error() string {
	lines := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		if v.Path == "" {
			lines[i] = v.Message
		} else {
			lines[i] = v.Path + ": " + v.Message
		}
	}
	if len(lines) == 1 {
		return fmt.Sprintf("%s: %s", e.File, lines[0])
	}
	return fmt.Sprintf("%s: %d violations:\n  %s", e.File, len(lines), strings.Join(lines, "\n  "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// FormatError converts a CUE error into a ValidationError. Errors that do
// not come from CUE are wrapped with the file name only.
func FormatError(err error, file string) error {
	if err == nil {
		return nil
	}
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return fmt.Errorf("%s: %w", file, err)
	}

	out := &ValidationError{File: file}
	for _, e := range list {
		path := formatPath(cueerrors.Path(e))
		msg := e.Error()
		if path != "" {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, path), ":"))
		}
		out.Violations = append(out.Violations, Violation{Path: path, Message: msg})
	}
	return out
}

// formatPath renders ["sources", "0", "alias"] as "sources[0].alias".
func formatPath(path []string) string {
	var b strings.Builder
	for i, part := range path {
		switch {
		case i > 0 && isIndex(part):
			b.WriteString("[" + part + "]")
		case i > 0:
			b.WriteString("." + part)
		default:
			b.WriteString(part)
		}
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// CheckFileSize rejects data larger than maxSize.
func CheckFileSize(data []byte, maxSize int64, file string) error {
	if int64(len(data)) > maxSize {
		return fmt.Errorf("%s: %d bytes exceeds the %d byte limit: %w", file, len(data), maxSize, ErrTooLarge)
	}
	return nil
}

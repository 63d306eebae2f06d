// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// ActionableError is the user-facing error of every bmadx command. It
	// names the failed operation and the path or alias involved. Details list
	// supporting facts such as every rejected location, and Suggestions hold
	// next steps. Issue links the error to a catalog entry.
	//
	//	err := issue.NewErrorContext().
	//		WithOperation("resolve installation").
	//		WithDetail("project /work/app: not-found (no bmad/_cfg directory)").
	//		WithSuggestion("Run 'bmadx resolve --mode auto' from the project root").
	//		WithIssue(issue.NoInstallationFoundId).
	//		Wrap(originalErr).
	//		BuildError()
	ActionableError struct {
		Operation   string
		Resource    string
		Details     []string
		Suggestions []string
		// Issue is zero when no catalog entry applies.
		Issue Id
		Cause error
	}

	// ErrorContext builds an ActionableError.
	ErrorContext struct {
		operation   string
		resource    string
		details     []string
		suggestions []string
		issue       Id
		cause       error
	}
)

// NewErrorContext creates a new ErrorContext builder.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// IssueOf returns the catalog id of the outermost ActionableError in the
// chain that carries one.
func IssueOf(err error) (Id, bool) {
	for err != nil {
		if ae, ok := err.(*ActionableError); ok && ae.Issue != 0 {
			return ae.Issue, true
		}
		err = errors.Unwrap(err)
	}
	return 0, false
}

// Error returns a concise message suitable for default (non-verbose) output.
func (e *ActionableError) Error() string {
	var msg strings.Builder

	msg.WriteString("failed to ")
	msg.WriteString(e.Operation)

	if e.Resource != "" {
		msg.WriteString(": ")
		msg.WriteString(e.Resource)
	}

	if e.Cause != nil {
		msg.WriteString(": ")
		msg.WriteString(e.Cause.Error())
	}

	return msg.String()
}

// Unwrap returns the underlying cause error for use with errors.Is/As.
func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// Format returns a formatted error message with optional verbosity.
//
//	failed to <operation>: <resource>: <cause message>
//	  - <detail 1>
//
//	  • <suggestion 1>
//
// When verbose is true the full error chain is appended. Stack frames are
// never included.
func (e *ActionableError) Format(verbose bool) string {
	var msg strings.Builder

	msg.WriteString(e.Error())

	for _, detail := range e.Details {
		msg.WriteString("\n  - ")
		msg.WriteString(detail)
	}

	if len(e.Suggestions) > 0 {
		msg.WriteString("\n")
		for _, suggestion := range e.Suggestions {
			msg.WriteString("\n  • ")
			msg.WriteString(suggestion)
		}
	}

	if verbose && e.Cause != nil {
		msg.WriteString("\n\nError chain:")
		err := e.Cause
		depth := 1
		for err != nil {
			fmt.Fprintf(&msg, "\n  %d. %s", depth, err.Error())
			err = errors.Unwrap(err)
			depth++
		}
	}

	return msg.String()
}

// WithOperation sets the operation being performed.
func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.operation = op
	return c
}

// WithResource sets the resource (file, path, alias) involved.
func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.resource = res
	return c
}

// WithDetail appends one detail line.
func (c *ErrorContext) WithDetail(detail string) *ErrorContext {
	c.details = append(c.details, detail)
	return c
}

// WithSuggestion adds a suggestion for how to fix the issue.
func (c *ErrorContext) WithSuggestion(sug string) *ErrorContext {
	c.suggestions = append(c.suggestions, sug)
	return c
}

// WithIssue links the error to a catalog entry.
func (c *ErrorContext) WithIssue(id Id) *ErrorContext {
	c.issue = id
	return c
}

// Wrap wraps an underlying error as the cause.
func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.cause = err
	return c
}

// Build creates an ActionableError from the context.
// Returns nil if no operation is set (operation is required).
func (c *ErrorContext) Build() *ActionableError {
	if c.operation == "" {
		return nil
	}

	return &ActionableError{
		Operation:   c.operation,
		Resource:    c.resource,
		Details:     c.details,
		Suggestions: c.suggestions,
		Issue:       c.issue,
		Cause:       c.cause,
	}
}

// BuildError creates an ActionableError and returns it as an error interface.
// Returns nil if no operation is set.
func (c *ErrorContext) BuildError() error {
	ae := c.Build()
	if ae == nil {
		return nil
	}
	return ae
}

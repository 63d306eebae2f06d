// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries the failed operation, the resource involved, detail
// lines and remediation suggestions. The issue catalog holds Markdown guidance
// rendered with glamour for the terminal errors bmadx can surface.
package issue

// SPDX-License-Identifier: MPL-2.0

// Package location discovers candidate installation roots and selects the
// active one.
//
// Every candidate source (project directory, explicit paths, an environment
// variable, the user-global directory and a packaged fallback) is inspected and
// kept in the result together with its status and rejection reason, so a
// failed resolution can explain everything that was checked. Priority is a
// property of the source kind; the active location is the first valid
// location after a stable sort by priority.
package location

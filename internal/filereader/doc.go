// SPDX-License-Identifier: MPL-2.0

// Package filereader reads agent and workflow content while keeping every
// read inside a fixed set of root directories.
package filereader

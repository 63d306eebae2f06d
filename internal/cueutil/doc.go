// SPDX-License-Identifier: MPL-2.0

// Package cueutil validates user CUE files against embedded schemas and
// reports violations with JSON-style field paths.
package cueutil

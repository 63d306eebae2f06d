// SPDX-License-Identifier: MPL-2.0

// Package remote resolves "@alias:subpath" references against git
// repositories.
//
// Each repository is cloned once into a private cache directory keyed by a
// hash of its URL. Concurrent requests for the same repository share a
// single clone or fetch. Agent catalogs are built per commit and kept in an
// LRU, so a new upstream commit naturally invalidates them.
package remote

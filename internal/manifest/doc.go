// SPDX-License-Identifier: MPL-2.0

// Package manifest reconciles the declared CSV manifests of an installation
// with what actually exists on disk.
//
// Every agent, workflow, and task found by either side appears exactly once
// in the resulting Set, classified as verified, not-in-manifest, or
// no-file-found. Malformed manifests never abort a pass; they are reported as
// Diagnostics and the filesystem scan still contributes its records.
package manifest

// SPDX-License-Identifier: MPL-2.0

// Package fuzzy matches a possibly misspelled name against a candidate list
// using edit distance. It never guesses between equally close candidates.
package fuzzy

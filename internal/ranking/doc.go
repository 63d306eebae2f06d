// SPDX-License-Identifier: MPL-2.0

// Package ranking orders candidates that match the same query.
//
// The session score combines recency and frequency of use from an in-memory
// Tracker with the manifest position of each candidate. When a Sampler is
// available, there are at least three candidates, and the caller supplied a
// query, the Sampler's judgment is used instead; its free-text answer is
// parsed so that it can neither drop nor invent candidates.
package ranking

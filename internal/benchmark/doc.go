// SPDX-License-Identifier: MPL-2.0

// Package benchmark provides benchmarks for PGO profile generation.
// They cover the hot paths of one MCP tool call:
//   - installation discovery
//   - manifest reconciliation
//   - fuzzy name matching and session ranking
//   - end-to-end command routing
//
// To generate a profile, run:
//
//	go test ./internal/benchmark -run=^$ -bench=. -cpuprofile=default.pgo
package benchmark

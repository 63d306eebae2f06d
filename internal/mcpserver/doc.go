// SPDX-License-Identifier: MPL-2.0

// Package mcpserver exposes the command router over the Model Context
// Protocol: one bmad tool, one prompt per agent, and a sampling-backed
// ranking judge when the client supports it.
package mcpserver

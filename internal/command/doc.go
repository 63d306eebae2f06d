// SPDX-License-Identifier: MPL-2.0

// Package command implements the single command surface shared by the MCP
// tool and the CLI.
//
// A command is one string: "" loads the default agent, "<name>" loads an
// agent, "*<name>" loads a workflow, "*list-agents" and friends list what
// is available, and "@alias:path" resolves an agent from a remote source.
// Every outcome, success or failure, is a Result with a stable error code
// and exit code.
package command

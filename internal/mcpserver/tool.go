// SPDX-License-Identifier: MPL-2.0

package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/bmadx/bmadx/internal/command"
)

const (
	// ToolName is the single tool this server registers.
	ToolName = "bmad"

	argCommand = "command"
	argContext = "context"
)

const toolDescription = `Unified BMAD tool with instruction-based routing.

Command patterns:
- "" (empty) loads bmad-master, the default agent
- "<agent-name>" loads an agent, e.g. "analyst"
- "*<workflow-name>" runs a workflow, e.g. "*party-mode"; the asterisk is required
- "@<alias>:<agent>" loads an agent from a configured remote source
- "*list-agents", "*list-workflows", "*list-tasks", "*help" explore the installation

Naming rules:
- Agent names use lowercase letters and hyphens ("bmad-master")
- Workflow names use lowercase letters, digits, and hyphens ("dev-story")
- Names are 2-50 characters and case-sensitive
- Pass one argument at a time

Misspelled names, a missing asterisk, and invalid characters produce errors with suggestions.`

// BmadTool handles the bmad MCP tool.
type BmadTool struct {
	router *command.Router
}

// NewBmadTool creates a BmadTool backed by router.
func NewBmadTool(router *command.Router) *BmadTool {
	return &BmadTool{router: router}
}

// Definition returns the MCP tool definition for registration.
func (t *BmadTool) Definition() mcp.Tool {
	return mcp.NewTool(ToolName,
		mcp.WithDescription(toolDescription),
		mcp.WithString(argCommand,
			mcp.Required(),
			mcp.Description("Command to execute: empty string for the default agent, 'agent-name' for agents, '*workflow-name' for workflows, '@alias:agent' for remote agents"),
		),
		mcp.WithString(argContext,
			mcp.Description("Optional description of the task at hand, used to choose between same-named agents or workflows from different modules"),
		),
	)
}

// Handle processes one bmad tool call.
func (t *BmadTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cmd := req.GetString(argCommand, "")
	query := req.GetString(argContext, "")

	res := t.router.Run(ctx, command.Request{Command: cmd, Query: query})
	if !res.Success {
		slog.Warn("bmad tool error", "command", cmd, "code", res.ErrorCode)
		return mcp.NewToolResultError(errorText(res)), nil
	}
	return mcp.NewToolResultText(successText(res)), nil
}

func errorText(res command.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", res.ErrorCode, res.Error)
	if len(res.Suggestions) > 0 && !strings.Contains(res.Error, res.Suggestions[0]) {
		fmt.Fprintf(&b, "\n\nSuggestions: %s", strings.Join(res.Suggestions, ", "))
	}
	return b.String()
}

func successText(res command.Result) string {
	text := res.Content
	if res.Corrected {
		text = fmt.Sprintf("> Resolved %q to %s/%s.\n\n%s", res.Name, res.Module, res.Name, text)
	}
	if len(res.Alternatives) > 0 {
		text += fmt.Sprintf("\n\n> Also available from other modules: %s", strings.Join(res.Alternatives, ", "))
	}
	return text
}

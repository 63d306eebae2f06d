// SPDX-License-Identifier: MPL-2.0

package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/bmadx/bmadx/internal/command"
	"github.com/bmadx/bmadx/internal/manifest"
)

// PromptPrefix starts every agent prompt name.
const PromptPrefix = "bmad-"

// AgentPrompts keeps one MCP prompt per on-disk agent in sync with the
// reconciled set.
type AgentPrompts struct {
	router *command.Router
	srv    *server.MCPServer

	mu    sync.Mutex
	names []string
}

// NewAgentPrompts creates an AgentPrompts registering on srv.
func NewAgentPrompts(srv *server.MCPServer, router *command.Router) *AgentPrompts {
	return &AgentPrompts{router: router, srv: srv}
}

// PromptName returns the prompt name of an agent.
func PromptName(agent string) string {
	if strings.HasPrefix(agent, PromptPrefix) {
		return agent
	}
	return PromptPrefix + agent
}

// Names returns the registered prompt names in registration order.
func (p *AgentPrompts) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.names)
}

// Sync replaces the registered prompts with those of set. It is installed
// as a reconciler reload listener.
func (p *AgentPrompts) Sync(set *manifest.Set) {
	defs := promptDefinitions(set)

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.names) > 0 {
		p.srv.DeletePrompts(p.names...)
	}
	p.names = p.names[:0]
	for _, def := range defs {
		p.srv.AddPrompt(def.prompt, p.handler(def.agent))
		p.names = append(p.names, def.prompt.Name)
	}
	slog.Debug("agent prompts synced", "count", len(p.names))
}

type promptDef struct {
	agent  string
	prompt mcp.Prompt
}

func promptDefinitions(set *manifest.Set) []promptDef {
	var out []promptDef
	seen := make(map[string]struct{})
	for _, rec := range set.Agents {
		if !rec.ExistsOnDisk {
			continue
		}
		name := PromptName(rec.Name)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		display := rec.DisplayName
		if display == "" {
			display = rec.Name
		}
		title := rec.Title
		if title == "" {
			title = "BMAD Agent"
		}
		out = append(out, promptDef{
			agent:  rec.Name,
			prompt: mcp.NewPrompt(name, mcp.WithPromptDescription(display+" - "+title)),
		})
	}
	return out
}

func (p *AgentPrompts) handler(agent string) server.PromptHandlerFunc {
	return func(ctx context.Context, _ mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		res := p.router.Execute(ctx, agent)
		if !res.Success {
			return &mcp.GetPromptResult{
				Description: "Error loading agent",
				Messages: []mcp.PromptMessage{
					{Role: mcp.RoleUser, Content: mcp.NewTextContent(errorText(res))},
				},
			}, nil
		}
		return &mcp.GetPromptResult{
			Description: fmt.Sprintf("BMAD Agent: %s", res.DisplayName),
			Messages: []mcp.PromptMessage{
				{Role: mcp.RoleUser, Content: mcp.NewTextContent(res.Content)},
			},
		}, nil
	}
}

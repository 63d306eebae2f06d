// SPDX-License-Identifier: MPL-2.0

package mcpserver

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/bmadx/bmadx/internal/command"
	"github.com/bmadx/bmadx/internal/manifest"
)

const instructions = `BMAD agents and workflows are served through the bmad tool.
Call it with an empty command to load bmad-master, with an agent name to load
that agent, or with *<workflow> to run a workflow. Use *list-agents and
*list-workflows to discover what is installed. Agent prompts are also
available as bmad-<agent>.`

type (
	// Options configures a Server.
	Options struct {
		Name    string
		Version string
		Router  *command.Router
		// Reconciler drives prompt registration; nil serves the tool only.
		Reconciler *manifest.Reconciler
	}

	// Server is the MCP surface of one router.
	Server struct {
		mcp        *server.MCPServer
		router     *command.Router
		prompts    *AgentPrompts
		reconciler *manifest.Reconciler
	}
)

// New creates a Server with the bmad tool, agent prompts, and sampling
// registered.
func New(opts Options) *Server {
	if opts.Name == "" {
		opts.Name = "bmadx"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := server.NewMCPServer(
		opts.Name,
		opts.Version,
		server.WithToolCapabilities(false),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	s.EnableSampling()

	router := opts.Router
	router = router.WithRanker(router.Ranker().WithSampler(NewSampler(s)))

	tool := NewBmadTool(router)
	s.AddTool(tool.Definition(), tool.Handle)

	prompts := NewAgentPrompts(s, router)
	if opts.Reconciler != nil {
		opts.Reconciler.OnReload(prompts.Sync)
		if set := opts.Reconciler.Current(); set != nil {
			prompts.Sync(set)
		}
	}

	return &Server{mcp: s, router: router, prompts: prompts, reconciler: opts.Reconciler}
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// Prompts returns the agent prompt registry.
func (s *Server) Prompts() *AgentPrompts { return s.prompts }

// Serve speaks MCP over in and out until ctx is done or in is closed.
// Logs must go to stderr; out carries protocol frames only.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	if s.reconciler != nil {
		if _, err := s.reconciler.Ensure(ctx); err != nil {
			slog.Warn("initial reconciliation failed, serving without prompts", "error", err)
		}
	}

	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))
	slog.Info("mcp server listening on stdio", "prompts", len(s.prompts.Names()))
	return stdio.Listen(ctx, in, out)
}

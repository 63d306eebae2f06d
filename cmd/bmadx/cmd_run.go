// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bmadx/bmadx/internal/command"
	"github.com/bmadx/bmadx/internal/issue"
)

// codeIssues maps router error codes to catalog entries shown on stderr.
var codeIssues = map[string]issue.Id{
	command.CodeNoInstallation:     issue.NoInstallationFoundId,
	command.CodePathTraversal:      issue.PathTraversalId,
	command.CodeUnknownRemoteAlias: issue.RemoteAliasUnknownId,
	command.CodeRemoteCloneFailed:  issue.RemoteCloneFailedId,
	command.CodeAmbiguousMatch:     issue.AmbiguousMatchId,
	command.CodeUnknownAgent:       issue.AgentNotFoundId,
	command.CodeUnknownWorkflow:    issue.WorkflowNotFoundId,
}

func newRunCommand(app *App, flags *rootFlagValues) *cobra.Command {
	var (
		query  string
		pretty bool
	)

	cmd := &cobra.Command{
		Use:   "run [command]",
		Short: "Execute a command and print the JSON result",
		Long: `Execute one command exactly as an MCP client would and print the result as JSON.

Commands:
  (empty)          load the default agent
  <agent>          load an agent, e.g. "analyst"
  *<workflow>      load a workflow, e.g. "*party-mode"
  @<alias>:<path>  load an agent from a remote source
  *list-agents, *list-workflows, *list-tasks, *help

The process exits with the result's exit code.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.newSession(cmd.Context(), flags)
			if err != nil {
				return err
			}

			req := command.Request{Query: query}
			if len(args) == 1 {
				req.Command = args[0]
			}
			res := s.router.Run(cmd.Context(), req)

			enc := json.NewEncoder(app.stdout)
			if pretty {
				enc.SetIndent("", "  ")
			}
			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}

			if res.Success {
				return nil
			}
			if id, ok := codeIssues[res.ErrorCode]; ok && flags.verbose {
				app.renderIssue(s.cfg, id)
			}
			return &ExitError{Code: res.ExitCode, Err: errors.New(res.Error)}
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "natural-language context used to rank same-named records")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	return cmd
}

// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for bmadx.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/bmadx/bmadx/internal/location"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	flags := &rootFlagValues{}

	root := &cobra.Command{
		Use:   "bmadx",
		Short: "Resolve, reconcile, and serve BMAD agents and workflows",
		Long: TitleStyle.Render("bmadx") + SubtitleStyle.Render(" - BMAD resolution and reconciliation engine") + `

bmadx finds the active BMAD installation, reconciles its CSV manifests with
the files on disk, fetches agents from aliased git repositories, and serves
the result to MCP clients.

` + SubtitleStyle.Render("Examples:") + `
  bmadx resolve                 Show every checked location
  bmadx reconcile               Compare manifests with the filesystem
  bmadx run analyst             Load an agent as a JSON result
  bmadx run "*party-mode"       Load a workflow
  bmadx remote @bmad:bmm/pm     Fetch an agent from a remote source
  bmadx serve                   Run the MCP server on stdio`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			app.setupLogging(flags.verbose)
			if flags.mode != "" {
				return location.Mode(flags.mode).Validate()
			}
			return nil
		},
	}
	root.SetOut(app.stdout)
	root.SetErr(app.stderr)
	root.SetIn(app.stdin)

	pf := root.PersistentFlags()
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	pf.StringVar(&flags.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/bmadx/config.cue)")
	pf.StringArrayVar(&flags.roots, "root", nil, "installation root to check (repeatable)")
	pf.StringVar(&flags.mode, "mode", "", "discovery mode: auto or strict (default from config)")

	root.AddCommand(
		newResolveCommand(app, flags),
		newReconcileCommand(app, flags),
		newRemoteCommand(app, flags),
		newRankCommand(app, flags),
		newRunCommand(app, flags),
		newServeCommand(app, flags),
		newWatchCommand(app, flags),
		newConfigCommand(app, flags),
	)
	return root
}

// Execute runs the CLI. It is called by main.main.
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bmadx/bmadx/internal/command"
	"github.com/bmadx/bmadx/internal/remote"
)

func newRemoteCommand(app *App, flags *rootFlagValues) *cobra.Command {
	remoteCmd := &cobra.Command{
		Use:   "remote <@alias:subpath>",
		Short: "Load an agent from an aliased git repository",
		Long: `Load an agent from a remote source registered in the configuration.

The repository is cloned into the cache on first use and re-fetched once the
clone is older than remote.max_age. A near-miss agent name is corrected when
the match is unambiguous.`,
		Example: `  bmadx remote @bmad:bmm/agents/pm
  bmadx remote @bmad:analist
  bmadx remote list @bmad`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.newSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			res := s.router.Execute(cmd.Context(), args[0])
			if !res.Success {
				if id, ok := codeIssues[res.ErrorCode]; ok {
					app.renderIssue(s.cfg, id)
				}
				return &ExitError{Code: res.ExitCode, Err: errors.New(res.Error)}
			}
			if res.Corrected {
				fmt.Fprintln(app.stderr, WarningStyle.Render("Using closest match "+res.Name+" ("+res.Source+")"))
			}
			fmt.Fprint(app.stdout, res.Content)
			return nil
		},
	}

	remoteCmd.AddCommand(&cobra.Command{
		Use:   "list <@alias>",
		Short: "List the agents of a remote source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.newSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			if s.remote == nil {
				return &ExitError{Code: command.ExitRemote, Err: errors.New("remote sources are not configured")}
			}
			alias := strings.TrimSuffix(strings.TrimPrefix(args[0], "@"), ":")
			records, err := s.remote.List(cmd.Context(), alias)
			if err != nil {
				return &ExitError{Code: remoteExitCode(err), Err: err}
			}
			printCatalog(app.stdout, alias, records)
			return nil
		},
	})

	remoteCmd.AddCommand(&cobra.Command{
		Use:   "cache",
		Short: "Show cached remote clones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.newSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			if s.remote == nil {
				return &ExitError{Code: command.ExitRemote, Err: errors.New("remote sources are not configured")}
			}
			entries, err := s.remote.Cache().Entries()
			if err != nil {
				return err
			}
			printCache(app.stdout, s.remote, entries, time.Now())
			return nil
		},
	})

	return remoteCmd
}

func remoteExitCode(err error) int {
	switch {
	case errors.Is(err, remote.ErrCloneFailure):
		return command.ExitRemote
	default:
		return command.ExitValidation
	}
}

func printCatalog(w io.Writer, alias string, records []remote.CatalogRecord) {
	fmt.Fprintln(w, TitleStyle.Render("Agents in @"+alias)+SubtitleStyle.Render(fmt.Sprintf(" (%d)", len(records))))
	fmt.Fprintln(w)
	for _, r := range records {
		line := fmt.Sprintf("  %-28s %s", CmdStyle.Render("@"+alias+":"+r.Qualified()), VerboseStyle.Render(r.Path))
		if r.DisplayName != "" {
			line += "  " + r.DisplayName
		}
		fmt.Fprintln(w, line)
	}
}

func printCache(w io.Writer, rr *remote.Resolver, entries []remote.CacheEntry, now time.Time) {
	fmt.Fprintln(w, TitleStyle.Render("Remote cache")+SubtitleStyle.Render(" at "+rr.Cache().Dir()))
	fmt.Fprintf(w, "%s %s\n", SubtitleStyle.Render("Aliases:"), strings.Join(rr.Registry().Aliases(), ", "))
	fmt.Fprintf(w, "%s %d\n", SubtitleStyle.Render("Catalogs in memory:"), rr.Cache().CatalogLen())
	fmt.Fprintln(w)

	if len(entries) == 0 {
		fmt.Fprintln(w, SubtitleStyle.Render("No cached clones."))
		return
	}
	for _, e := range entries {
		commit := e.CurrentCommit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		age := now.Sub(e.LastFetchTime).Truncate(time.Second)
		fmt.Fprintf(w, "  %s  %s  %s\n", CmdStyle.Render(e.SourceURL), commit, VerboseStyle.Render("fetched "+age.String()+" ago"))
		fmt.Fprintln(w, "    "+VerboseStyle.Render(e.LocalCacheDir))
	}
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bmadx/bmadx/internal/command"
	"github.com/bmadx/bmadx/internal/issue"
	"github.com/bmadx/bmadx/internal/location"
)

func newResolveCommand(app *App, flags *rootFlagValues) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [paths...]",
		Short: "Find the active BMAD installation",
		Long: `Check every candidate location and report which one is active.

Paths given as arguments are checked like --root paths. Candidates are checked
in priority order: project directory, --root paths, $BMAD_ROOT, ~/.bmad,
and the packaged fallback.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			local := *flags
			local.roots = append(append([]string{}, flags.roots...), args...)

			loaded, err := app.loadConfig(cmd.Context(), &local)
			if err != nil {
				return err
			}
			res, err := app.resolve(cmd.Context(), loaded.Config, &local)
			if err != nil {
				return err
			}

			printResolution(app.stdout, res)
			if _, err := res.RequireActive(); err != nil {
				app.renderIssueOf(loaded.Config, err, issue.NoInstallationFoundId)
				return &ExitError{Code: command.ExitNotFound, Err: err}
			}
			return nil
		},
	}
}

func printResolution(w io.Writer, res *location.Result) {
	fmt.Fprintln(w, TitleStyle.Render("Installation discovery")+SubtitleStyle.Render(" ("+string(res.Mode)+" mode)"))
	fmt.Fprintln(w)

	for _, loc := range res.Locations {
		marker := "  "
		if res.Active != nil && loc.Kind == res.Active.Kind && loc.OriginalPath == res.Active.OriginalPath {
			marker = SuccessStyle.Render("→ ")
		}
		status := locationStatusStyle(loc.Status).Render(string(loc.Status))
		fmt.Fprintf(w, "%s%-8s %s  %s\n", marker, loc.Kind, CmdStyle.Render(loc.OriginalPath), status)

		switch {
		case loc.IsValid():
			detail := fmt.Sprintf("root %s, %s layout", loc.ResolvedRoot, loc.VersionTag)
			if loc.Walked {
				detail += ", found by searching"
			}
			fmt.Fprintln(w, "           "+VerboseStyle.Render(detail))
		case loc.Reason != "":
			fmt.Fprintln(w, "           "+VerboseStyle.Render(loc.Reason))
		}
	}

	fmt.Fprintln(w)
	if res.Active == nil {
		fmt.Fprintln(w, ErrorStyle.Render("No valid installation found"))
		return
	}
	fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render("Active:"), res.Active.ResolvedRoot)
}

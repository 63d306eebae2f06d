// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bmadx/bmadx/internal/issue"
	"github.com/bmadx/bmadx/internal/manifest"
)

func newReconcileCommand(app *App, flags *rootFlagValues) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare the manifests with the files on disk",
		Long: `Reconcile the active installation's CSV manifests with a filesystem scan.

Every agent, workflow, and task is reported once as verified, not-in-manifest,
or no-file-found. Malformed manifests are reported as diagnostics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.newSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			rec, err := app.requireInstallation(s)
			if err != nil {
				return err
			}
			set, err := rec.Reload(cmd.Context())
			if err != nil {
				return err
			}

			printSet(app.stdout, set, all || flags.verbose)
			for _, d := range set.Diagnostics {
				if d.Code == manifest.CodeManifestParseFailed {
					app.renderIssue(s.cfg, issue.ManifestParseFailedId)
					break
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "list every record, not only the problems")
	return cmd
}

func printSet(w io.Writer, set *manifest.Set, all bool) {
	fmt.Fprintln(w, TitleStyle.Render("Reconciliation")+SubtitleStyle.Render(" of "+set.Location.ResolvedRoot))
	fmt.Fprintln(w)

	for _, kind := range manifest.Kinds {
		records := set.Records(kind)
		counts := map[manifest.Status]int{}
		for _, r := range records {
			counts[r.Status]++
		}
		fmt.Fprintf(w, "%s %d (%s, %s, %s)\n",
			CmdStyle.Render(fmt.Sprintf("%-10s", string(kind)+"s")),
			len(records),
			SuccessStyle.Render(fmt.Sprintf("%d verified", counts[manifest.StatusVerified])),
			WarningStyle.Render(fmt.Sprintf("%d not in manifest", counts[manifest.StatusNotInManifest])),
			ErrorStyle.Render(fmt.Sprintf("%d missing", counts[manifest.StatusNoFileFound])),
		)
		for _, r := range records {
			if !all && r.Status == manifest.StatusVerified {
				continue
			}
			fmt.Fprintf(w, "  %-28s %s  %s\n",
				r.QualifiedName(),
				recordStatusStyle(r.Status).Render(string(r.Status)),
				VerboseStyle.Render(r.ModuleRelativePath))
		}
	}

	if len(set.Modules) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, SubtitleStyle.Render("Modules:"))
		for _, m := range set.Modules {
			version := m.Version
			if version == "" {
				version = "-"
			}
			fmt.Fprintf(w, "  %-10s %-16s %s\n", m.Name, version, VerboseStyle.Render(string(m.VersionTag)))
		}
	}

	if len(set.Diagnostics) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, WarningStyle.Render(fmt.Sprintf("Diagnostics (%d):", len(set.Diagnostics))))
		for _, d := range set.Diagnostics {
			fmt.Fprintf(w, "  [%s] %s\n", d.Code, d.Message)
		}
	}
}

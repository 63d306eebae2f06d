// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bmadx/bmadx/internal/ranking"
)

func newRankCommand(app *App, flags *rootFlagValues) *cobra.Command {
	var (
		query string
		used  []string
	)

	cmd := &cobra.Command{
		Use:   "rank <module/name>...",
		Short: "Show how same-named candidates would be ordered",
		Long: `Rank candidate keys with the configured weights.

Keys are given in manifest order as "module/name". --use records an access
before ranking and may be repeated, which shows how recency and frequency
move a key up.`,
		Example: `  bmadx rank bmm/pm cis/pm
  bmadx rank bmm/pm cis/pm --use cis/pm --use cis/pm`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := app.loadConfig(cmd.Context(), flags)
			if err != nil {
				return err
			}

			ranker := ranking.NewRanker(nil, loaded.Config.Weights(), nil)
			for _, key := range used {
				ranker.Tracker().Record(key)
			}

			candidates := make([]ranking.Candidate, len(args))
			for i, key := range args {
				module, _, _ := strings.Cut(key, "/")
				candidates[i] = ranking.Candidate{Key: key, Module: module}
			}

			out, err := ranker.Rank(cmd.Context(), candidates, query)
			if err != nil {
				return err
			}
			printRanking(app.stdout, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "natural-language context for the ranking")
	cmd.Flags().StringArrayVar(&used, "use", nil, "record an access of key before ranking (repeatable)")
	return cmd
}

func printRanking(w io.Writer, r ranking.Ranking) {
	fmt.Fprintln(w, TitleStyle.Render("Ranking")+SubtitleStyle.Render(" ("+string(r.Method)+")"))
	for i, key := range r.Keys {
		fmt.Fprintf(w, "  %d. %-28s %s\n", i+1, CmdStyle.Render(key), VerboseStyle.Render(fmt.Sprintf("%.4f", r.Scores[key])))
	}
}

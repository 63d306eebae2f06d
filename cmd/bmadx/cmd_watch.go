// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bmadx/bmadx/internal/manifest"
	"github.com/bmadx/bmadx/internal/watch"
)

func newWatchCommand(app *App, flags *rootFlagValues) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-reconcile the installation whenever its files change",
		Long: `Watch the active installation and reconcile again after every change.

Changes to *.md, *.yaml, *.csv, and *.xml files are debounced and trigger one
reload. Press Ctrl+C to stop.`,
		Args: cobra.NoArgs,
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
			printSet(app.stdout, set, false)

			w, err := newWatcher(rec, debounce, func(set *manifest.Set, changed []string) {
				fmt.Fprintf(app.stdout, "\n%s %d file(s) changed\n", SubtitleStyle.Render(time.Now().Format(time.TimeOnly)), len(changed))
				printSet(app.stdout, set, false)
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(app.stderr, SubtitleStyle.Render("Watching "+w.Root()+" (Ctrl+C to stop)"))
			if err := w.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before reloading")
	return cmd
}

func newWatcher(rec *manifest.Reconciler, debounce time.Duration, onReload func(*manifest.Set, []string)) (*watch.Watcher, error) {
	return watch.New(watch.Config{
		Root:     rec.Location().ResolvedRoot,
		Debounce: debounce,
		Reloader: rec,
		OnReload: onReload,
	})
}

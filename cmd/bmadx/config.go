// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/bmadx/bmadx/internal/config"
	"github.com/bmadx/bmadx/internal/issue"
)

// newConfigCommand creates the `bmadx config` command tree.
func newConfigCommand(app *App, flags *rootFlagValues) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage bmadx configuration",
		Long: `Manage bmadx configuration.

Configuration is stored in:
  - Linux: ~/.config/bmadx/config.cue
  - macOS: ~/Library/Application Support/bmadx/config.cue
  - Windows: %APPDATA%\bmadx\config.cue

Every scalar key can be overridden with BMADX_<SECTION>_<KEY>, for example
BMADX_DISCOVERY_MODE=strict or BMADX_RANKING_HALF_LIFE=30m.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := app.loadConfig(cmd.Context(), flags)
			if err != nil {
				app.renderIssueOf(nil, err, issue.ConfigLoadFailedId)
				return err
			}
			showConfig(app.stdout, loaded)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.CreateDefaultConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Config file:"), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.configPath != "" {
				fmt.Fprintln(app.stdout, flags.configPath)
				return nil
			}
			path, err := config.ConfigFilePath()
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := app.loadConfig(cmd.Context(), flags)
			if err != nil {
				return err
			}
			fmt.Fprint(app.stdout, config.GenerateCUE(loaded.Config))
			return nil
		},
	})

	return cfgCmd
}

func showConfig(w io.Writer, loaded *config.Loaded) {
	cfg := loaded.Config
	key := func(k string) string { return CmdStyle.Render(k) }
	val := func(v any) string { return SuccessStyle.Render(fmt.Sprint(v)) }

	fmt.Fprintln(w, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(w)
	if loaded.Path != "" {
		fmt.Fprintf(w, "%s: %s\n", key("Config file"), loaded.Path)
	} else {
		fmt.Fprintf(w, "%s: %s\n", key("Config file"), SubtitleStyle.Render("(using defaults)"))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, SubtitleStyle.Render("discovery"))
	fmt.Fprintf(w, "  %s: %s\n", key("mode"), val(cfg.Discovery.Mode))
	fmt.Fprintf(w, "  %s: %s\n", key("env_var"), val(cfg.Discovery.EnvVar))
	if cfg.Discovery.UserRoot != "" {
		fmt.Fprintf(w, "  %s: %s\n", key("user_root"), val(cfg.Discovery.UserRoot))
	}
	if cfg.Discovery.PackageRoot != "" {
		fmt.Fprintf(w, "  %s: %s\n", key("package_root"), val(cfg.Discovery.PackageRoot))
	}
	for _, r := range cfg.Discovery.Roots {
		fmt.Fprintf(w, "  %s: %s\n", key("root"), val(r))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, SubtitleStyle.Render("remote"))
	cacheDir, err := cfg.CacheDir()
	if err != nil {
		cacheDir = "(" + err.Error() + ")"
	}
	fmt.Fprintf(w, "  %s: %s\n", key("cache_dir"), val(cacheDir))
	fmt.Fprintf(w, "  %s: %s\n", key("max_age"), val(cfg.Remote.MaxAge))
	fmt.Fprintf(w, "  %s: %s\n", key("clone_timeout"), val(cfg.Remote.CloneTimeout))
	fmt.Fprintf(w, "  %s: %s\n", key("catalog_cache_size"), val(cfg.Remote.CatalogCacheSize))
	for _, spec := range cfg.RemoteSpecs() {
		ref := spec.Ref
		if ref == "" {
			ref = "HEAD"
		}
		fmt.Fprintf(w, "  %s: %s %s\n", key("@"+spec.Alias), val(spec.URL()), VerboseStyle.Render(ref+" "+spec.BaseSubpath))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, SubtitleStyle.Render("ranking"))
	fmt.Fprintf(w, "  %s: %s\n", key("recency_weight"), val(cfg.Ranking.RecencyWeight))
	fmt.Fprintf(w, "  %s: %s\n", key("frequency_weight"), val(cfg.Ranking.FrequencyWeight))
	fmt.Fprintf(w, "  %s: %s\n", key("manifest_priority_weight"), val(cfg.Ranking.ManifestPriorityWeight))
	fmt.Fprintf(w, "  %s: %s\n", key("half_life"), val(cfg.Ranking.HalfLife))
	fmt.Fprintf(w, "  %s: %s\n", key("frequency_cap"), val(cfg.Ranking.FrequencyCap))
	for _, m := range slices.Sorted(maps.Keys(cfg.Ranking.ModuleBoosts)) {
		fmt.Fprintf(w, "  %s: %s\n", key("module_boost "+m), val(cfg.Ranking.ModuleBoosts[m]))
	}
	for _, k := range slices.Sorted(maps.Keys(cfg.Ranking.KeyBoosts)) {
		fmt.Fprintf(w, "  %s: %s\n", key("key_boost "+k), val(cfg.Ranking.KeyBoosts[k]))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, SubtitleStyle.Render("ui"))
	fmt.Fprintf(w, "  %s: %s\n", key("color_scheme"), val(cfg.UI.ColorScheme))
	fmt.Fprintf(w, "  %s: %s\n", key("verbose"), val(cfg.UI.Verbose))
}

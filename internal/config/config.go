// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/bmadx/bmadx/internal/cueutil"
	"github.com/bmadx/bmadx/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "bmadx"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"

	// EnvPrefix prefixes every environment override, e.g.
	// BMADX_DISCOVERY_MODE or BMADX_RANKING_HALF_LIFE.
	EnvPrefix = "BMADX"
	// CacheDirEnv overrides the remote cache directory.
	CacheDirEnv = "BMADX_CACHE_DIR"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the bmadx configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default:
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// ConfigFilePath returns the default config file location.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

// DefaultCacheDir returns the remote cache directory: BMADX_CACHE_DIR when
// set, else ~/.bmadx/cache.
func DefaultCacheDir() (string, error) {
	return DefaultCacheDirWith(os.Getenv, os.UserHomeDir)
}

// DefaultCacheDirWith is DefaultCacheDir with injected environment lookups.
func DefaultCacheDirWith(getenv func(string) string, homeDir func() (string, error)) (string, error) {
	if dir := getenv(CacheDirEnv); dir != "" {
		return dir, nil
	}
	home, err := homeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, "."+AppName, "cache"), nil
}

// CacheDir returns remote.cache_dir, or DefaultCacheDir when it is unset.
func (c *Config) CacheDir() (string, error) {
	if c.Remote.CacheDir != "" {
		return c.Remote.CacheDir, nil
	}
	return DefaultCacheDir()
}

// loadWithOptions performs option-driven config loading without mutating
// package-level state.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	resolvedPath := ""

	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'bmadx config show' to see the default configuration").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		if err := loadCUEIntoViper(v, opts.ConfigFilePath); err != nil {
			return nil, "", loadError(opts.ConfigFilePath, err)
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		cfgDir, err := configDirWithOverride(opts.ConfigDirPath)
		if err != nil {
			return nil, "", err
		}

		for _, candidate := range []string{
			filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt),
			ConfigFileName + "." + ConfigFileExt,
		} {
			if !fileExists(candidate) {
				continue
			}
			if err := loadCUEIntoViper(v, candidate); err != nil {
				return nil, "", loadError(candidate, err)
			}
			resolvedPath = candidate
			break
		}
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	applyEnv(v, getenv)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Ensure each remote source alias is unique").
			WithSuggestion("Check BMADX_* environment variables for invalid values").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

func loadError(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("load configuration").
		WithResource(path).
		WithSuggestion("Check that the file contains valid CUE syntax").
		WithSuggestion("Verify the configuration values match the expected schema").
		WithSuggestion("Run 'bmadx config init' to write a commented default file").
		WithIssue(issue.ConfigLoadFailedId).
		Wrap(err).
		BuildError()
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("discovery.mode", string(d.Discovery.Mode))
	v.SetDefault("discovery.user_root", d.Discovery.UserRoot)
	v.SetDefault("discovery.package_root", d.Discovery.PackageRoot)
	v.SetDefault("discovery.env_var", d.Discovery.EnvVar)
	v.SetDefault("discovery.roots", d.Discovery.Roots)
	v.SetDefault("remote.cache_dir", d.Remote.CacheDir)
	v.SetDefault("remote.max_age", d.Remote.MaxAge)
	v.SetDefault("remote.clone_timeout", d.Remote.CloneTimeout)
	v.SetDefault("remote.catalog_cache_size", d.Remote.CatalogCacheSize)
	v.SetDefault("remote.sources", d.Remote.Sources)
	v.SetDefault("ranking.recency_weight", d.Ranking.RecencyWeight)
	v.SetDefault("ranking.frequency_weight", d.Ranking.FrequencyWeight)
	v.SetDefault("ranking.manifest_priority_weight", d.Ranking.ManifestPriorityWeight)
	v.SetDefault("ranking.half_life", d.Ranking.HalfLife)
	v.SetDefault("ranking.frequency_cap", d.Ranking.FrequencyCap)
	v.SetDefault("ui.color_scheme", string(d.UI.ColorScheme))
	v.SetDefault("ui.verbose", d.UI.Verbose)
}

// envKeys are the scalar keys that BMADX_* variables may override.
var envKeys = []string{
	"discovery.mode",
	"discovery.user_root",
	"discovery.package_root",
	"discovery.env_var",
	"remote.cache_dir",
	"remote.max_age",
	"remote.clone_timeout",
	"remote.catalog_cache_size",
	"ranking.recency_weight",
	"ranking.frequency_weight",
	"ranking.manifest_priority_weight",
	"ranking.half_life",
	"ranking.frequency_cap",
	"ui.color_scheme",
	"ui.verbose",
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// applyEnv overrides keys from the environment. Values bypass the CUE
// schema, so Config.Validate runs afterwards.
func applyEnv(v *viper.Viper, getenv func(string) string) {
	for _, key := range envKeys {
		if val := getenv(EnvName(key)); val != "" {
			v.Set(key, val)
		}
	}
}

func configDirWithOverride(configDirPath string) (string, error) {
	if configDirPath != "" {
		return configDirPath, nil
	}
	return ConfigDir()
}

// loadCUEIntoViper validates a CUE file against #Config and merges it into
// Viper, preserving defaults and environment overrides.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	configMap, err := cueutil.DecodeMap(configSchema, data, "#Config",
		cueutil.WithFilename(path),
		cueutil.WithConcrete(false),
	)
	if err != nil {
		return err
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default config file if none exists and
// returns its path.
func CreateDefaultConfig() (string, error) {
	cfgPath, err := ConfigFilePath()
	if err != nil {
		return "", err
	}
	if fileExists(cfgPath) {
		return cfgPath, nil
	}
	return cfgPath, writeConfig(cfgPath, DefaultConfig())
}

// Save writes cfg to the default config file.
func Save(cfg *Config) error {
	cfgPath, err := ConfigFilePath()
	if err != nil {
		return err
	}
	return writeConfig(cfgPath, cfg)
}

func writeConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateCUE renders cfg as a config file that validates against #Config.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// bmadx configuration file\n")
	sb.WriteString("// Every field is optional; BMADX_<SECTION>_<KEY> environment variables override it.\n\n")

	sb.WriteString("discovery: {\n")
	fmt.Fprintf(&sb, "\tmode: %q\n", cfg.Discovery.Mode)
	fmt.Fprintf(&sb, "\tenv_var: %q\n", cfg.Discovery.EnvVar)
	if cfg.Discovery.UserRoot != "" {
		fmt.Fprintf(&sb, "\tuser_root: %q\n", cfg.Discovery.UserRoot)
	}
	if cfg.Discovery.PackageRoot != "" {
		fmt.Fprintf(&sb, "\tpackage_root: %q\n", cfg.Discovery.PackageRoot)
	}
	if len(cfg.Discovery.Roots) > 0 {
		sb.WriteString("\troots: [\n")
		for _, r := range cfg.Discovery.Roots {
			fmt.Fprintf(&sb, "\t\t%q,\n", r)
		}
		sb.WriteString("\t]\n")
	}
	sb.WriteString("}\n")

	sb.WriteString("\nremote: {\n")
	if cfg.Remote.CacheDir != "" {
		fmt.Fprintf(&sb, "\tcache_dir: %q\n", cfg.Remote.CacheDir)
	}
	fmt.Fprintf(&sb, "\tmax_age: %q\n", cfg.Remote.MaxAge.String())
	fmt.Fprintf(&sb, "\tclone_timeout: %q\n", cfg.Remote.CloneTimeout.String())
	fmt.Fprintf(&sb, "\tcatalog_cache_size: %d\n", cfg.Remote.CatalogCacheSize)
	if len(cfg.Remote.Sources) > 0 {
		sb.WriteString("\tsources: [\n")
		for _, s := range cfg.Remote.Sources {
			sb.WriteString("\t\t{")
			fmt.Fprintf(&sb, "alias: %q, org: %q, repo: %q", s.Alias, s.Org, s.Repo)
			for _, f := range [][2]string{
				{"protocol", s.Protocol},
				{"host", s.Host},
				{"ref", s.Ref},
				{"subpath", s.Subpath},
			} {
				if f[1] != "" {
					fmt.Fprintf(&sb, ", %s: %q", f[0], f[1])
				}
			}
			sb.WriteString("},\n")
		}
		sb.WriteString("\t]\n")
	}
	sb.WriteString("}\n")

	sb.WriteString("\nranking: {\n")
	fmt.Fprintf(&sb, "\trecency_weight: %v\n", cfg.Ranking.RecencyWeight)
	fmt.Fprintf(&sb, "\tfrequency_weight: %v\n", cfg.Ranking.FrequencyWeight)
	fmt.Fprintf(&sb, "\tmanifest_priority_weight: %v\n", cfg.Ranking.ManifestPriorityWeight)
	fmt.Fprintf(&sb, "\thalf_life: %q\n", cfg.Ranking.HalfLife.String())
	fmt.Fprintf(&sb, "\tfrequency_cap: %d\n", cfg.Ranking.FrequencyCap)
	writeBoosts(&sb, "module_boosts", cfg.Ranking.ModuleBoosts)
	writeBoosts(&sb, "key_boosts", cfg.Ranking.KeyBoosts)
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tcolor_scheme: %q\n", cfg.UI.ColorScheme)
	fmt.Fprintf(&sb, "\tverbose: %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	return sb.String()
}

func writeBoosts(sb *strings.Builder, field string, boosts map[string]float64) {
	if len(boosts) == 0 {
		return
	}
	fmt.Fprintf(sb, "\t%s: {\n", field)
	for _, k := range slices.Sorted(maps.Keys(boosts)) {
		fmt.Fprintf(sb, "\t\t%q: %v\n", k, boosts[k])
	}
	sb.WriteString("\t}\n")
}

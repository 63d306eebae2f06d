// SPDX-License-Identifier: MPL-2.0

package config

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bmadx/bmadx/internal/location"
	"github.com/bmadx/bmadx/internal/ranking"
	"github.com/bmadx/bmadx/internal/remote"
)

const (
	// ColorSchemeAuto detects the terminal color scheme automatically.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces dark color scheme.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces light color scheme.
	ColorSchemeLight ColorScheme = "light"

	// DefaultMaxAge is how long a remote clone is served before a re-fetch.
	DefaultMaxAge = 24 * time.Hour
	// DefaultCloneTimeout bounds an initial remote clone.
	DefaultCloneTimeout = 2 * time.Minute

	// DefaultSourceAlias is the alias of the built-in remote source.
	DefaultSourceAlias = "bmad"
	// DefaultSourceHost is used for sources that name no host.
	DefaultSourceHost = "github.com"
)

var (
	// ErrInvalidColorScheme is returned when a ColorScheme value is not recognized.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ColorScheme selects the terminal palette.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// InvalidConfigError collects every problem found by Config.Validate.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// DiscoveryConfig controls installation discovery.
	DiscoveryConfig struct {
		Mode        location.Mode `json:"mode" mapstructure:"mode"`
		UserRoot    string        `json:"user_root,omitempty" mapstructure:"user_root"`
		PackageRoot string        `json:"package_root,omitempty" mapstructure:"package_root"`
		EnvVar      string        `json:"env_var" mapstructure:"env_var"`
		// Roots are extra cli-kind candidates checked after --root paths.
		Roots []string `json:"roots,omitempty" mapstructure:"roots"`
	}

	// SourceConfig is one aliased remote repository.
	SourceConfig struct {
		Alias    string `json:"alias" mapstructure:"alias"`
		Protocol string `json:"protocol,omitempty" mapstructure:"protocol"`
		Host     string `json:"host,omitempty" mapstructure:"host"`
		Org      string `json:"org" mapstructure:"org"`
		Repo     string `json:"repo" mapstructure:"repo"`
		Ref      string `json:"ref,omitempty" mapstructure:"ref"`
		Subpath  string `json:"subpath,omitempty" mapstructure:"subpath"`
	}

	// RemoteConfig controls the remote source cache.
	RemoteConfig struct {
		// CacheDir overrides DefaultCacheDir when set.
		CacheDir         string         `json:"cache_dir,omitempty" mapstructure:"cache_dir"`
		MaxAge           time.Duration  `json:"max_age" mapstructure:"max_age"`
		CloneTimeout     time.Duration  `json:"clone_timeout" mapstructure:"clone_timeout"`
		CatalogCacheSize int            `json:"catalog_cache_size" mapstructure:"catalog_cache_size"`
		Sources          []SourceConfig `json:"sources" mapstructure:"sources"`
	}

	// RankingConfig configures the session score.
	RankingConfig struct {
		RecencyWeight          float64            `json:"recency_weight" mapstructure:"recency_weight"`
		FrequencyWeight        float64            `json:"frequency_weight" mapstructure:"frequency_weight"`
		ManifestPriorityWeight float64            `json:"manifest_priority_weight" mapstructure:"manifest_priority_weight"`
		HalfLife               time.Duration      `json:"half_life" mapstructure:"half_life"`
		FrequencyCap           int                `json:"frequency_cap" mapstructure:"frequency_cap"`
		ModuleBoosts           map[string]float64 `json:"module_boosts,omitempty" mapstructure:"module_boosts"`
		KeyBoosts              map[string]float64 `json:"key_boosts,omitempty" mapstructure:"key_boosts"`
	}

	// UIConfig configures terminal output.
	UIConfig struct {
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		Verbose     bool        `json:"verbose" mapstructure:"verbose"`
	}

	// Config is the complete bmadx configuration.
	Config struct {
		Discovery DiscoveryConfig `json:"discovery" mapstructure:"discovery"`
		Remote    RemoteConfig    `json:"remote" mapstructure:"remote"`
		Ranking   RankingConfig   `json:"ranking" mapstructure:"ranking"`
		UI        UIConfig        `json:"ui" mapstructure:"ui"`
	}
)

// Validate returns an error if the ColorScheme is not recognized.
func (c ColorScheme) Validate() error {
	switch c {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return nil
	default:
		return &InvalidColorSchemeError{Value: c}
	}
}

func (c ColorScheme) String() string { return string(c) }

func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

func (e *InvalidColorSchemeError) Unwrap() error { return ErrInvalidColorScheme }

func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// Validate checks the constraints the CUE schema cannot express and the
// values that environment overrides bypass the schema for.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Discovery.Mode.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.UI.ColorScheme.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Weights().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Remote.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("remote.max_age %s is negative", c.Remote.MaxAge))
	}
	if c.Remote.CloneTimeout < 0 {
		errs = append(errs, fmt.Errorf("remote.clone_timeout %s is negative", c.Remote.CloneTimeout))
	}

	seen := make(map[string]int)
	for i, spec := range c.RemoteSpecs() {
		if err := spec.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("remote.sources[%d]: %w", i, err))
		}
		if first, ok := seen[spec.Alias]; ok {
			errs = append(errs, fmt.Errorf("remote.sources[%d]: duplicate alias %q (same as remote.sources[%d])", i, spec.Alias, first))
			continue
		}
		seen[spec.Alias] = i
	}

	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// Weights converts the ranking section.
func (c *Config) Weights() ranking.Weights {
	return ranking.Weights{
		Recency:          c.Ranking.RecencyWeight,
		Frequency:        c.Ranking.FrequencyWeight,
		ManifestPriority: c.Ranking.ManifestPriorityWeight,
		ModuleBoosts:     c.Ranking.ModuleBoosts,
		KeyBoosts:        c.Ranking.KeyBoosts,
		HalfLife:         c.Ranking.HalfLife,
		FrequencyCap:     c.Ranking.FrequencyCap,
	}
}

// RemoteSpecs converts the configured sources.
func (c *Config) RemoteSpecs() []remote.SourceSpec {
	out := make([]remote.SourceSpec, 0, len(c.Remote.Sources))
	for _, s := range c.Remote.Sources {
		out = append(out, remote.SourceSpec{
			Alias:       s.Alias,
			Protocol:    remote.Protocol(s.Protocol),
			Host:        cmp.Or(s.Host, DefaultSourceHost),
			Org:         s.Org,
			Repo:        s.Repo,
			Ref:         s.Ref,
			BaseSubpath: s.Subpath,
		})
	}
	return out
}

// CachePolicy converts the remote freshness settings.
func (c *Config) CachePolicy() remote.Policy {
	return remote.Policy{MaxAge: c.Remote.MaxAge, CloneTimeout: c.Remote.CloneTimeout}
}

// SourceOptions builds discovery candidates: explicit paths first, then the
// configured roots.
func (c *Config) SourceOptions(explicit []string) location.SourceOptions {
	paths := make([]string, 0, len(explicit)+len(c.Discovery.Roots))
	paths = append(paths, explicit...)
	paths = append(paths, c.Discovery.Roots...)
	return location.SourceOptions{
		ExplicitPaths: paths,
		EnvVar:        c.Discovery.EnvVar,
		UserRoot:      c.Discovery.UserRoot,
		PackageRoot:   c.Discovery.PackageRoot,
	}
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	w := ranking.DefaultWeights()
	return &Config{
		Discovery: DiscoveryConfig{
			Mode:   location.ModeAuto,
			EnvVar: location.DefaultEnvVar,
		},
		Remote: RemoteConfig{
			MaxAge:           DefaultMaxAge,
			CloneTimeout:     DefaultCloneTimeout,
			CatalogCacheSize: remote.DefaultCatalogSize,
			Sources: []SourceConfig{{
				Alias:    DefaultSourceAlias,
				Protocol: string(remote.ProtocolHTTPS),
				Host:     DefaultSourceHost,
				Org:      "bmad-code-org",
				Repo:     "BMAD-METHOD",
				Subpath:  "bmad",
			}},
		},
		Ranking: RankingConfig{
			RecencyWeight:          w.Recency,
			FrequencyWeight:        w.Frequency,
			ManifestPriorityWeight: w.ManifestPriority,
			HalfLife:               w.HalfLife,
			FrequencyCap:           w.FrequencyCap,
		},
		UI: UIConfig{ColorScheme: ColorSchemeAuto},
	}
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"

	"github.com/bmadx/bmadx/internal/command"
	"github.com/bmadx/bmadx/internal/config"
	"github.com/bmadx/bmadx/internal/issue"
	"github.com/bmadx/bmadx/internal/location"
	"github.com/bmadx/bmadx/internal/manifest"
	"github.com/bmadx/bmadx/internal/ranking"
	"github.com/bmadx/bmadx/internal/remote"
)

type (
	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Loaded, error)
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config ConfigProvider
		// Fetcher replaces the go-git fetcher of the remote cache.
		Fetcher remote.Fetcher
		// Getwd and Getenv replace the os functions used for discovery.
		Getwd  func() (string, error)
		Getenv func(string) string
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer
	}

	// App wires CLI services and shared dependencies. Every Cobra handler
	// receives an App and builds what it needs through a session.
	App struct {
		Config  ConfigProvider
		fetcher remote.Fetcher
		getwd   func() (string, error)
		getenv  func(string) string
		stdin   io.Reader
		stdout  io.Writer
		stderr  io.Writer
		logger  *log.Logger
	}

	// rootFlagValues holds the persistent flags of one invocation.
	rootFlagValues struct {
		verbose    bool
		configPath string
		roots      []string
		mode       string
	}

	// session is everything one command invocation needs, built from
	// configuration and a discovery pass.
	session struct {
		cfg        *config.Config
		cfgPath    string
		resolution *location.Result
		// reconciler is nil when no installation was found; installErr
		// says why.
		reconciler *manifest.Reconciler
		installErr error
		remote     *remote.Resolver
		ranker     *ranking.Ranker
		router     *command.Router
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdin == nil {
		deps.Stdin = os.Stdin
	}
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Getwd == nil {
		deps.Getwd = os.Getwd
	}
	if deps.Getenv == nil {
		deps.Getenv = os.Getenv
	}

	logger := log.NewWithOptions(deps.Stderr, log.Options{Prefix: config.AppName})
	return &App{
		Config:  deps.Config,
		fetcher: deps.Fetcher,
		getwd:   deps.Getwd,
		getenv:  deps.Getenv,
		stdin:   deps.Stdin,
		stdout:  deps.Stdout,
		stderr:  deps.Stderr,
		logger:  logger,
	}
}

// setupLogging routes package-level slog calls through the charm logger on
// stderr. stdout stays reserved for command output and MCP frames.
func (a *App) setupLogging(verbose bool) {
	if verbose {
		a.logger.SetLevel(log.DebugLevel)
	} else {
		a.logger.SetLevel(log.InfoLevel)
	}
	slog.SetDefault(slog.New(a.logger))
}

func (a *App) loadConfig(ctx context.Context, flags *rootFlagValues) (*config.Loaded, error) {
	loaded, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: flags.configPath, Getenv: a.getenv})
	if err != nil {
		return nil, err
	}
	if loaded.Config.UI.Verbose && !flags.verbose {
		a.logger.SetLevel(log.DebugLevel)
	}
	return loaded, nil
}

// resolve runs one discovery pass. The --mode flag wins over the config.
func (a *App) resolve(ctx context.Context, cfg *config.Config, flags *rootFlagValues) (*location.Result, error) {
	mode := cfg.Discovery.Mode
	if flags.mode != "" {
		mode = location.Mode(flags.mode)
	}

	opts := cfg.SourceOptions(flags.roots)
	opts.Getwd = a.getwd
	opts.Getenv = a.getenv
	return location.Resolve(ctx, location.DefaultSources(opts), mode)
}

// remoteResolver builds the alias registry and clone cache.
func (a *App) remoteResolver(cfg *config.Config) (*remote.Resolver, error) {
	registry, err := remote.NewRegistry(cfg.RemoteSpecs()...)
	if err != nil {
		return nil, err
	}
	dir := cfg.Remote.CacheDir
	if dir == "" {
		dir, err = config.DefaultCacheDirWith(a.getenv, os.UserHomeDir)
		if err != nil {
			return nil, err
		}
	}
	cache, err := remote.NewCache(remote.CacheOptions{
		Dir:         dir,
		Fetcher:     a.fetcher,
		Policy:      cfg.CachePolicy(),
		CatalogSize: cfg.Remote.CatalogCacheSize,
	})
	if err != nil {
		return nil, err
	}
	return remote.NewResolver(registry, cache), nil
}

// newSession loads configuration, resolves the installation, and wires the
// router. A missing installation is not an error here: local commands
// report it, remote commands still work.
func (a *App) newSession(ctx context.Context, flags *rootFlagValues) (*session, error) {
	loaded, err := a.loadConfig(ctx, flags)
	if err != nil {
		return nil, err
	}
	cfg := loaded.Config

	res, err := a.resolve(ctx, cfg, flags)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, cfgPath: loaded.Path, resolution: res}

	if loc, err := res.RequireActive(); err != nil {
		s.installErr = err
	} else {
		s.reconciler = manifest.NewReconciler(loc)
	}

	if rr, err := a.remoteResolver(cfg); err != nil {
		slog.Warn("remote sources disabled", "error", err)
	} else {
		s.remote = rr
	}

	s.ranker = ranking.NewRanker(nil, cfg.Weights(), nil)
	s.router = command.NewRouter(command.Options{
		Reconciler: s.reconciler,
		Ranker:     s.ranker,
		Remote:     s.remote,
		InstallErr: s.installErr,
	})
	return s, nil
}

// requireInstallation returns the reconciler or a rendered exit error.
func (a *App) requireInstallation(s *session) (*manifest.Reconciler, error) {
	if s.reconciler != nil {
		return s.reconciler, nil
	}
	a.renderIssueOf(s.cfg, s.installErr, issue.NoInstallationFoundId)
	return nil, &ExitError{Code: command.ExitNotFound, Err: s.installErr}
}

// renderIssueOf renders the catalog entry linked to err, or fallback when
// the chain carries none.
func (a *App) renderIssueOf(cfg *config.Config, err error, fallback issue.Id) {
	id, ok := issue.IssueOf(err)
	if !ok {
		id = fallback
	}
	a.renderIssue(cfg, id)
}

// renderIssue prints a catalog entry to stderr using the configured scheme.
func (a *App) renderIssue(cfg *config.Config, id issue.Id) {
	entry := issue.Get(id)
	if entry == nil {
		return
	}
	rendered, err := entry.Render(glamourStyle(cfg))
	if err != nil {
		slog.Debug("render issue", "id", id, "error", err)
		return
	}
	fmt.Fprint(a.stderr, rendered)
}

func glamourStyle(cfg *config.Config) string {
	if cfg == nil {
		return "dark"
	}
	switch cfg.UI.ColorScheme {
	case config.ColorSchemeLight:
		return "light"
	case config.ColorSchemeDark:
		return "dark"
	default:
		return "auto"
	}
}

// formatErrorForDisplay uses ActionableError.Format when available.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}

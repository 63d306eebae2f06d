// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bmadx/bmadx/internal/config"
	"github.com/bmadx/bmadx/internal/mcpserver"
)

const metricsShutdownTimeout = 5 * time.Second

func newServeCommand(app *App, flags *rootFlagValues) *cobra.Command {
	var (
		metricsAddr string
		watchFiles  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: `Serve the "bmad" tool and one prompt per agent over the Model Context
Protocol on stdin/stdout. Logs go to stderr.

With --watch the installation is reconciled again whenever its files change
and the agent prompts are re-registered. With --metrics-addr Prometheus
metrics are served on http://<addr>/metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.newSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			if s.installErr != nil {
				slog.Warn("no installation found; only remote commands will work", "error", s.installErr)
			}

			srv := mcpserver.New(mcpserver.Options{
				Name:       config.AppName,
				Version:    Version,
				Router:     s.router,
				Reconciler: s.reconciler,
			})

			// The MCP session ending (stdin closed) stops the metrics and
			// watch goroutines too.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				defer cancel()
				return srv.Serve(ctx, app.stdin, app.stdout)
			})

			if metricsAddr != "" {
				g.Go(func() error { return serveMetrics(ctx, metricsAddr) })
			}

			if watchFiles && s.reconciler != nil {
				w, err := newWatcher(s.reconciler, 0, nil)
				if err != nil {
					return err
				}
				g.Go(func() error { return w.Run(ctx) })
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")
	cmd.Flags().BoolVar(&watchFiles, "watch", false, "reload the installation when its files change")
	return cmd
}

// serveMetrics runs the /metrics endpoint until ctx is canceled.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("serving metrics", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/wisdomtrail/internal/app"
	"github.com/MrWong99/wisdomtrail/internal/config"
	"github.com/MrWong99/wisdomtrail/internal/observe"
	"github.com/MrWong99/wisdomtrail/internal/server"
)

func newServeCmd(c *cli) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "以 HTTP API 提供課程",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				c.cfg.Server.ListenAddr = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "override server.listen_addr")
	return cmd
}

func (c *cli) serve(ctx context.Context) error {
	// ── Telemetry ─────────────────────────────────────────────────────────────
	// The global providers must be installed before the first metrics
	// instrument is created.
	tel, err := observe.Init(ctx, observe.TelemetryConfig{ServiceVersion: version})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			c.log.Warn("telemetry shutdown error", "err", err)
		}
	}()

	printStartupSummary(c.out, c.cfg)

	a, err := c.newApp(ctx, observe.DefaultMetrics())
	if err != nil {
		return err
	}
	sessions := app.NewSessionManager(a, c.cfg.Server.SessionTTL)
	defer func() {
		_ = sessions.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			c.log.Error("shutdown error", "err", err)
		}
	}()

	// ── Hot reload ────────────────────────────────────────────────────────────
	if c.configPath != "" {
		w, err := config.NewWatcher(c.configPath, func(d config.ConfigDiff, next *config.Config) {
			if d.LogLevelChanged {
				c.level.Set(slogLevel(d.NewLogLevel))
				c.log.Info("log level updated", "level", d.NewLogLevel)
			}
			a.ApplyConfig(d, next)
		}, config.WithWatcherLogger(c.log))
		if err != nil {
			return err
		}
		defer w.Stop()
	}

	srv := server.New(a, sessions,
		server.WithMetricsHandler(tel.MetricsHandler()),
		server.WithLogger(c.log),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, c.cfg.Server)
	})
	g.Go(func() error {
		sessions.Run(gctx, sweepInterval(c.cfg.Server.SessionTTL))
		return nil
	})

	c.log.Info("server ready, press Ctrl+C to shut down", "listen_addr", c.cfg.Server.ListenAddr)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	c.log.Info("goodbye")
	return nil
}

// sweepInterval checks for idle sessions four times per TTL, at most once
// a second.
func sweepInterval(ttl time.Duration) time.Duration {
	return max(ttl/4, time.Second)
}

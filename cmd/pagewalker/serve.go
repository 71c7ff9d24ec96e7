package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/pagewalker/pkg/browser"
	"github.com/entrhq/pagewalker/pkg/logging"
	"github.com/entrhq/pagewalker/pkg/server"
)

const maxReapInterval = time.Minute

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the page interaction API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd)
		},
	}
}

func (a *app) serve(cmd *cobra.Command) error {
	defer logging.Shutdown()

	cfg := a.cfg
	logger := componentLogger("server")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := server.NewMetrics(reg)

	manager, err := a.newManager(componentLogger("browser"), browser.WithObserver(metrics))
	if err != nil {
		return err
	}
	defer manager.Shutdown()

	srv := server.New(manager, metrics, logger)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return srv.ListenAndServe(ctx, cfg.Server.Address, cfg.Server.ShutdownTimeout)
	})
	if cfg.Session.IdleTimeout > 0 {
		interval := reapInterval(cfg.Session.IdleTimeout)
		logger.Infof("closing sessions idle for %s (checked every %s)", cfg.Session.IdleTimeout, interval)
		g.Go(func() error {
			manager.Reap(ctx, interval)
			return nil
		})
	}

	logger.Infof("pagewalker %s starting", Version)
	err = g.Wait()
	logger.Infof("pagewalker stopped")
	return err
}

// reapInterval checks twice per idle period, at most once a minute apart.
func reapInterval(idle time.Duration) time.Duration {
	interval := idle / 2
	if interval > maxReapInterval {
		interval = maxReapInterval
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/moonwalker/verdict/pkg/rules/action"
	"github.com/moonwalker/verdict/pkg/rules/engine"
	"github.com/moonwalker/verdict/pkg/rules/eventsource"
	"github.com/moonwalker/verdict/pkg/rules/metrics"
	"github.com/moonwalker/verdict/pkg/rules/watch"
	redistore "github.com/moonwalker/verdict/pkg/store/redis"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the rule registry with hot reload and metrics",
		Long: `Load every rule-set of the repo and keep them current.

Reload sources, each enabled by its configuration:
  NATS_URL        reload/stop/resume commands on rules.*
  disk repo       file changes under VERDICT_RULES_DIR
  redis repo      keyspace events on rulesets:*
  jetstream repo  bucket updates

Metrics are served on METRICS_ADDR at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, root.cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config) error {
	stream := cfg.stream()
	if stream != nil {
		defer stream.Close()
	}

	b, err := openBackend(cfg, stream)
	if err != nil {
		return err
	}
	defer b.repo.Close()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(promRegistry)

	ports, jobs, err := cfg.ports(stream)
	if err != nil {
		return err
	}

	reg := engine.New(
		engine.WithRepo(b.repo),
		engine.WithObserver(collector),
		engine.WithDispatcher(action.New(
			action.WithPorts(ports),
			action.WithObserver(collector.ActionExecuted),
		)),
	)
	defer reg.Close()

	if err := reg.LoadAll(); err != nil {
		slog.Warn("some rule-sets failed to load", "err", err)
	}

	reg.OnStats(cfg.StatsInterval, func(stats *engine.EngineStats) {
		slog.Info("rules stats", "enabled", stats.Enabled, "engines", stats.Engines, "rules", stats.Rules, "repo", stats.Repo)
	})

	errc := make(chan error, 8)
	run := func(name string, fn func() error) {
		go func() {
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				errc <- err
				slog.Error("reload source stopped", "source", name, "err", err)
			}
		}()
	}

	if stream != nil {
		src := eventsource.NewNatsCommandSource(stream)
		if err := src.Receive(reg.Commands); err != nil {
			return err
		}
		defer src.Close()
		slog.Info("listening for rule commands", "nats", stream.URL())
	}

	switch {
	case b.dir != "":
		w, err := watch.NewWatcher(b.dir)
		if err != nil {
			return err
		}
		defer w.Close()
		run("fsnotify", func() error { return w.Watch(ctx, reg.Commands) })
	case b.bucket != nil:
		run("jetstream", func() error { return eventsource.WatchBucket(ctx, b.bucket, reg.Commands) })
	case cfg.Repo == repoRedis:
		kn, err := redistore.NewKeyspaceNotifications(b.store)
		if err != nil {
			return err
		}
		run("redis", func() error { return eventsource.WatchKeyspace(ctx, kn, reg.Commands) })
	}

	if jobs != nil {
		defer jobs.Close()
		run("workflows", func() error {
			jobs.Run(ctx)
			return nil
		})
	}

	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(collector)}
	run("metrics", func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	slog.Info("verdict serving", "repo", b.repo.Name(), "engines", len(reg.GetEngineNames()), "metrics", cfg.MetricsAddr)

	select {
	case <-ctx.Done():
	case err = <-errc:
	}

	shutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	srv.Shutdown(shutdown)

	slog.Info("verdict stopped")
	return err
}

func metricsMux(c *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/floraqa/internal/bootstrap"
	"github.com/kirillkom/floraqa/internal/config"
	"github.com/kirillkom/floraqa/internal/core/ports"
	"github.com/kirillkom/floraqa/internal/infrastructure/queue/nats"
	"github.com/kirillkom/floraqa/internal/observability/logging"
	"github.com/kirillkom/floraqa/internal/observability/metrics"
)

func main() {
	seedOnly := flag.Bool("seed", false, "seed the postgres and neo4j backends from the JSON knowledge files and exit")
	flag.Parse()

	cfg := config.Load()
	_, syncLogs := logging.New(logging.Config{Service: "floraqa-worker", Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer syncLogs()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *seedOnly {
		if err := seed(ctx, cfg); err != nil {
			slog.Error("seed_failed", "error", err)
			os.Exit(1)
		}
		return
	}

	workerMetrics := metrics.NewWorkerMetrics("floraqa-worker")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		ClientName:      "floraqa-worker",
		RebuildObserver: workerMetrics,
		SkipIndexLoad:   true,
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.Queue == nil {
		slog.Error("worker_requires_nats", "hint", "set NATS_ENABLED=true")
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSRebuildSubject)
	err = app.Queue.SubscribeRebuildRequested(ctx, func(handlerCtx context.Context, event nats.Event) error {
		return rebuildAndAnnounce(handlerCtx, app.Index, app.Queue, app.Query.Size, event.Reason)
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

const rebuildTimeout = 30 * time.Minute

// rebuildAndAnnounce rebuilds the artifact set and tells API replicas to
// reload it. Nothing is announced when the rebuild fails.
func rebuildAndAnnounce(ctx context.Context, index ports.IndexRebuilder, queue ports.RebuildQueue, size func() int, reason string) error {
	ctx, cancel := context.WithTimeout(ctx, rebuildTimeout)
	defer cancel()

	slog.Info("index_rebuild_requested", "reason", reason)
	if err := index.Rebuild(ctx); err != nil {
		return err
	}
	return queue.PublishIndexUpdated(ctx, size())
}


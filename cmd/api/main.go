package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/floraqa/internal/adapters/http"
	"github.com/kirillkom/floraqa/internal/bootstrap"
	"github.com/kirillkom/floraqa/internal/config"
	"github.com/kirillkom/floraqa/internal/core/ports"
	"github.com/kirillkom/floraqa/internal/infrastructure/queue/nats"
	"github.com/kirillkom/floraqa/internal/infrastructure/watcher"
	"github.com/kirillkom/floraqa/internal/observability/logging"
	"github.com/kirillkom/floraqa/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	_, syncLogs := logging.New(logging.Config{Service: "floraqa-api", Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer syncLogs()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics("floraqa-api")
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		ClientName:      "floraqa-api",
		AnswerObserver:  httpMetrics,
		BreakerListener: httpMetrics.ObserveBreaker,
		OnSweep:         httpMetrics.ObserveSweep,
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	sweeper := app.Sessions.StartSweeper(ctx, cfg.SessionSweepInterval)
	defer sweeper.Stop()

	var background sync.WaitGroup
	if app.Queue != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			err := app.Queue.SubscribeIndexUpdated(ctx, func(handlerCtx context.Context, event nats.Event) error {
				return onIndexUpdated(handlerCtx, app.Index, httpMetrics.RecordIndexReload, event.Chunks)
			})
			if err != nil {
				slog.Error("index_updates_subscribe_failed", "error", err)
			}
		}()
	}

	if cfg.WatchSources {
		var queue ports.RebuildQueue
		if app.Queue != nil {
			queue = app.Queue
		}
		sourceWatcher, err := watcher.New([]string{cfg.KnowledgeGeneralPath, cfg.KnowledgeRelationalPath}, cfg.WatchDebounce)
		if err != nil {
			slog.Error("watcher_init_failed", "error", err)
			os.Exit(1)
		}
		background.Add(1)
		go func() {
			defer background.Done()
			if err := sourceWatcher.Run(ctx, func(changeCtx context.Context, path string) {
				onSourceChanged(changeCtx, queue, app.Index, httpMetrics.RecordIndexReload, path)
			}); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("watcher_stopped", "error", err)
			}
		}()
	}

	router := httpadapter.NewRouter(app.Answers, app.Records, app.Query, httpadapter.Options{
		RateLimitRPS:            cfg.APIRateLimitRPS,
		RateLimitBurst:          cfg.APIRateLimitBurst,
		BackpressureMaxInFlight: cfg.APIBackpressureMaxInFlight,
		BackpressureWait:        cfg.APIBackpressureWait,
		Metrics:                 httpMetrics,
	}).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "addr", server.Addr, "index_ready", app.Query.Ready())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api_shutdown_failed", "error", err)
	}
	background.Wait()
}

// onIndexUpdated swaps in the artifact set a worker just published.
func onIndexUpdated(ctx context.Context, index ports.IndexRebuilder, record func(trigger string, err error), chunks int) error {
	err := index.Reload(ctx)
	record("nats", err)
	if err != nil {
		slog.Error("index_reload_failed", "trigger", "nats", "error", err)
		return err
	}
	slog.Info("index_reloaded", "trigger", "nats", "chunks", chunks)
	return nil
}

// onSourceChanged hands the rebuild to the worker when a queue is configured,
// otherwise rebuilds in process.
func onSourceChanged(ctx context.Context, queue ports.RebuildQueue, index ports.IndexRebuilder, record func(trigger string, err error), path string) {
	if queue != nil {
		if err := queue.PublishRebuildRequested(ctx, "source changed: "+path); err != nil {
			slog.Error("rebuild_request_publish_failed", "path", path, "error", err)
		}
		return
	}
	err := index.Rebuild(ctx)
	record("watcher", err)
	if err != nil {
		slog.Error("index_rebuild_failed", "trigger", "watcher", "error", err)
	}
}

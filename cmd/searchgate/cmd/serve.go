package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/searchgate/internal/queue"
	"github.com/Aman-CERP/searchgate/internal/storage"
	"github.com/Aman-CERP/searchgate/internal/transport/httpapi"
)

func newServeCmd(g *globals) *cobra.Command {
	var listen string
	var noQueue bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and consume the write queue",
		Long: `Start the HTTP API. When the queue is enabled (queue.enabled or
SEARCHGATE_REDIS_ADDRS), a Redis stream consumer runs alongside it and
applies write batches as they arrive.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				g.cfg.Server.Listen = listen
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, g, !noQueue)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides server.listen)")
	cmd.Flags().BoolVar(&noQueue, "no-queue", false, "Do not start the queue consumer")

	return cmd
}

func runServe(ctx context.Context, g *globals, withQueue bool) error {
	cfg, logger := g.cfg, g.logger

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(cfg, logger, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown_close_failed", slog.String("error", err.Error()))
		}
	}()

	server := httpapi.NewServer(a.executor, a.orchestrator, a.access,
		httpapi.WithLogger(logger),
		httpapi.WithSizer(func() (storage.Usage, error) { return storage.Measure(cfg.Paths.IndexRoot) }),
		httpapi.WithMetrics(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), a.metrics.Middleware()),
	)
	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	}

	var consumer *queue.Consumer
	if withQueue && cfg.QueueEnabled() {
		client, err := queue.NewClient(cfg.Queue.Addrs)
		if err != nil {
			return err
		}
		defer client.Close()

		consumer = queue.NewConsumer(client, a.orchestrator, queue.Config{
			Stream:    cfg.Queue.Stream,
			Group:     cfg.Queue.Group,
			Consumer:  cfg.Queue.Consumer,
			BatchSize: int64(cfg.Queue.BatchSize),
			Block:     cfg.QueueBlock(),
		}, queue.WithLogger(logger))
	}

	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		logger.Info("http_server_started", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	grp.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http_shutdown_failed", slog.String("error", err.Error()))
		}
		logger.Info("http_server_stopped")
		return nil
	})

	if consumer != nil {
		grp.Go(func() error { return consumer.Run(gctx) })
	}

	return grp.Wait()
}

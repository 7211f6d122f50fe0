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

	"github.com/kirillkom/slide-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/slide-rag-assistant/internal/config"
	"github.com/kirillkom/slide-rag-assistant/internal/core/domain"
	"github.com/kirillkom/slide-rag-assistant/internal/core/ports"
	"github.com/kirillkom/slide-rag-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/slide-rag-assistant/internal/observability/logging"
	"github.com/kirillkom/slide-rag-assistant/internal/observability/metrics"
)

const service = "worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, service, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(service)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:        logger,
		RetryObserver: workerMetrics.RetryObserver(service),
		Instrument: func(endpoint string, next ports.QueryService) ports.QueryService {
			return workerMetrics.Instrument(service, endpoint, next)
		},
	})
	if err != nil {
		logger.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	responder, err := nats.NewResponder(cfg.NATSURL, nats.ResponderConfig{
		Subject:        cfg.NATSQuerySubject,
		QueueGroup:     cfg.NATSQueueGroup,
		HandlerTimeout: cfg.NATSRequestTimeout,
	}, nats.Options{Name: "slide-rag-worker", Logger: logger})
	if err != nil {
		logger.Error("nats_connect_error", "error", err)
		os.Exit(1)
	}
	defer responder.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	engine := app.NewEngine("nats")
	logger.Info("worker_subscribed", "subject", cfg.NATSQuerySubject, "queue_group", cfg.NATSQueueGroup)
	err = responder.Serve(ctx, func(handlerCtx context.Context, query string) (*domain.DisplayPayload, error) {
		workerMetrics.StartQuery()
		start := time.Now()
		result, err := engine.Answer(handlerCtx, query)
		workerMetrics.FinishQuery(service, time.Since(start), err)
		if err != nil {
			return nil, err
		}
		payload := app.Formatter.Format(result)
		return &payload, nil
	})
	if err != nil {
		logger.Error("worker_serve_error", "error", err)
		os.Exit(1)
	}
}

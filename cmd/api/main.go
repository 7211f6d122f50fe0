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

	httpadapter "github.com/kirillkom/slide-rag-assistant/internal/adapters/http"
	"github.com/kirillkom/slide-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/slide-rag-assistant/internal/config"
	"github.com/kirillkom/slide-rag-assistant/internal/core/ports"
	"github.com/kirillkom/slide-rag-assistant/internal/observability/logging"
	"github.com/kirillkom/slide-rag-assistant/internal/observability/metrics"
)

const service = "api"

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

	httpMetrics := metrics.NewHTTPServerMetrics(service)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:        logger,
		RetryObserver: httpMetrics.RetryObserver(service),
		Instrument: func(endpoint string, next ports.QueryService) ports.QueryService {
			return httpMetrics.Instrument(service, endpoint, next)
		},
	})
	if err != nil {
		logger.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	go app.Sessions.RunJanitor(ctx, time.Minute)

	router, err := httpadapter.NewRouter(cfg, app.NewEngine("query"), app.Sessions, app.Formatter, httpMetrics)
	if err != nil {
		logger.Error("router_error", "error", err)
		os.Exit(1)
	}
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.CompletionTimeout + 60*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_error", "error", err)
	}
}

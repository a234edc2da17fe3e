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

	"quantlab/pulse/configs"
	"quantlab/pulse/internal/alert"
	"quantlab/pulse/internal/api"
	"quantlab/pulse/internal/bus"
	"quantlab/pulse/internal/feed"
	"quantlab/pulse/internal/hub"
	"quantlab/pulse/internal/resample"
	"quantlab/pulse/internal/worker"
)

func main() {
	appConfig := configs.AppLoad()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(appConfig.LogLevel),
	}))

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores := resample.NewStores(appConfig.Store.TickCapacity, appConfig.Store.CandleCapacity)
	eventBus := bus.New(logger)

	alertEngine, err := alert.Open(appConfig.Alert.DBPath, appConfig.Alert.Retention, logger)
	if err != nil {
		logger.Error("Opening alert store failed", "error", err)
		os.Exit(1)
	}
	defer alertEngine.Close()

	pipeline := resample.New(stores, eventBus, appConfig.Feed.Symbols, appConfig.Store.ResampleBatch, logger)
	if err := pipeline.Start(ctx); err != nil {
		logger.Error("Starting resample pipeline failed", "error", err)
		os.Exit(1)
	}
	defer pipeline.Stop()

	ingestor := feed.NewIngestor(appConfig.Feed.URL, appConfig.Feed.Symbols, stores.Ticks, logger)

	analyticsWorker := worker.New(
		stores.Candles,
		eventBus,
		alertEngine,
		appConfig.Feed.Symbols,
		appConfig.Analytics.Window,
		appConfig.Analytics.Interval,
		appConfig.Analytics.TTL,
		logger,
	)

	wsHub := hub.New(eventBus, logger)

	handler := api.NewHandler(stores.Candles, analyticsWorker, alertEngine, appConfig.Feed.Symbols)
	server := &http.Server{
		Addr:    ":" + appConfig.ServerPort,
		Handler: api.NewRouter(handler, wsHub),
	}

	logger.Info("Starting",
		"symbols", appConfig.Feed.Symbols,
		"feed", appConfig.Feed.URL,
		"port", appConfig.ServerPort,
	)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ingestor.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Feed ingestor failed", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		analyticsWorker.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		wsHub.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	// Wait for context cancellation (signal received)
	<-ctx.Done()
	logger.Warn("Shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}

	wg.Wait()
	logger.Info("All components stopped")
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

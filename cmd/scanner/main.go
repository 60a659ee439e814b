package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sentinel/internal/adapters/config"
	"sentinel/internal/adapters/errors/noop"
	"sentinel/internal/adapters/errors/sentry"
	"sentinel/internal/adapters/quotes"
	"sentinel/internal/api"
	"sentinel/internal/api/health"
	"sentinel/internal/bus"
	"sentinel/internal/scanner"
	"sentinel/internal/workers"
	"sentinel/pkg/errors"
	"sentinel/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get().With("service", "scanner")
	log.Infof("Starting %s scanner in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := bus.NewKafkaBus(cfg.Kafka)
	defer eventBus.Close()

	source := quotes.NewAlphaVantage(cfg.Quotes)
	scanWorker := scanner.New(cfg.Scanner, source, eventBus)

	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(scanWorker)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	healthHandler := health.New("scanner", cfg.App.Version)
	// A scan loop stalled past two intervals means the service is up
	// but doing nothing; fail readiness so it gets replaced.
	healthHandler.RegisterCheck("scan_loop",
		health.StalenessCheck(scanWorker.LastRun, 2*cfg.Scanner.Interval))

	server := api.NewServer(api.ServerConfig{
		Port:        cfg.HTTP.Port,
		ServiceName: "scanner",
		Version:     cfg.App.Version,
	}, healthHandler)

	go func() {
		if err := server.Start(); err != nil {
			log.Errorf("HTTP server error: %v", err)
		}
	}()

	log.Info("Scanner started",
		"watchlist", cfg.Scanner.Watchlist,
		"interval", cfg.Scanner.Interval,
		"threshold", cfg.Scanner.Threshold,
	)

	waitForShutdown(cancel, log)

	if err := scheduler.Stop(); err != nil {
		log.Warnf("Scheduler shutdown: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP shutdown: %v", err)
	}
	if err := errorTracker.Flush(shutdownCtx); err != nil {
		log.Warnf("Failed to flush error tracker: %v", err)
	}

	log.Info("Shutdown complete")
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment, cfg.App.Version)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// waitForShutdown blocks until SIGINT or SIGTERM
func waitForShutdown(cancel context.CancelFunc, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")
	cancel()
}

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
	"sentinel/internal/adapters/news"
	"sentinel/internal/adapters/redis"
	"sentinel/internal/analyzer"
	"sentinel/internal/api"
	"sentinel/internal/api/health"
	"sentinel/internal/bus"
	"sentinel/pkg/errors"
	"sentinel/pkg/logger"
)

// consumerStaleAfter bounds how long the consumer may sit idle before
// readiness degrades. Market events are bursty, so this stays generous.
const consumerStaleAfter = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get().With("service", "analyzer")
	log.Infof("Starting %s analyzer in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := bus.NewKafkaBus(cfg.Kafka)
	defer eventBus.Close()

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	source := news.NewFinnhub(cfg.News)
	worker := analyzer.New(cfg.Analyzer, eventBus, source, redisClient)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := worker.Run(ctx); err != nil {
			log.Errorf("Analyzer stopped: %v", err)
			cancel()
		}
	}()

	healthHandler := health.New("analyzer", cfg.App.Version)
	healthHandler.RegisterCheck("redis", redisClient.Health)
	healthHandler.RegisterCheck("consumer",
		health.StalenessCheck(worker.LastHandled, consumerStaleAfter))

	server := api.NewServer(api.ServerConfig{
		Port:        cfg.HTTP.Port,
		ServiceName: "analyzer",
		Version:     cfg.App.Version,
	}, healthHandler)

	go func() {
		if err := server.Start(); err != nil {
			log.Errorf("HTTP server error: %v", err)
		}
	}()

	log.Info("Analyzer started",
		"lookback", cfg.Analyzer.Lookback,
		"sentiment_threshold", cfg.Analyzer.SentimentThreshold,
		"always_forward", cfg.Analyzer.AlwaysForward,
	)

	waitForShutdown(cancel, log)
	<-done

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

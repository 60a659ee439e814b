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
	"sentinel/internal/adapters/notify"
	pgclient "sentinel/internal/adapters/postgres"
	"sentinel/internal/api"
	"sentinel/internal/api/health"
	"sentinel/internal/bus"
	"sentinel/internal/notifier"
	"sentinel/internal/repository/postgres"
	"sentinel/internal/workers"
	"sentinel/pkg/errors"
	"sentinel/pkg/logger"
)

// consumerStaleAfter bounds how long the consumer may sit idle before
// readiness degrades
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

	log := logger.Get().With("service", "notifier")
	log.Infof("Starting %s notifier in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := bus.NewKafkaBus(cfg.Kafka)
	defer eventBus.Close()

	store, pg := initStore(cfg, log)
	if pg != nil {
		defer pg.Close()
	}

	channels := initChannels(cfg, log)
	if len(channels) == 0 {
		log.Fatalf("No notification channels configured")
	}

	dispatcher := notifier.New(cfg.Notifier, eventBus, store, channels)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := dispatcher.Run(ctx); err != nil {
			log.Errorf("Dispatcher stopped: %v", err)
			cancel()
		}
	}()
	go func() {
		if err := dispatcher.RunMarketEvents(ctx); err != nil {
			log.Errorf("Market event consumer stopped: %v", err)
		}
	}()

	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(notifier.NewJanitor(cfg.Notifier, store))
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	healthHandler := health.New("notifier", cfg.App.Version)
	if pg != nil {
		healthHandler.RegisterCheck("postgres", pg.Health)
	}
	healthHandler.RegisterCheck("consumer",
		health.StalenessCheck(dispatcher.LastHandled, consumerStaleAfter))

	server := api.NewServer(api.ServerConfig{
		Port:        cfg.HTTP.Port,
		ServiceName: "notifier",
		Version:     cfg.App.Version,
	}, healthHandler)

	go func() {
		if err := server.Start(); err != nil {
			log.Errorf("HTTP server error: %v", err)
		}
	}()

	log.Info("Notifier started", "channels", cfg.Notifier.Channels)

	waitForShutdown(cancel, log)
	<-done

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

// initStore returns the Postgres dispatch ledger when a database is
// reachable, falling back to the in-memory store. Without Postgres,
// dispatch dedup does not survive restarts.
func initStore(cfg *config.Config, log *logger.Logger) (notifier.Store, *pgclient.Client) {
	pg, err := pgclient.NewClient(cfg.Postgres)
	if err != nil {
		log.Warnf("Postgres unavailable, dispatch records held in memory: %v", err)
		return notifier.NewMemoryStore(), nil
	}

	log.Info("Dispatch records persisted to Postgres")
	return postgres.NewDispatchRepository(pg.DB()), pg
}

// initChannels builds the configured notification channels. A channel
// that fails to initialize is skipped so the rest keep working.
func initChannels(cfg *config.Config, log *logger.Logger) []notify.Notifier {
	var channels []notify.Notifier

	for _, name := range cfg.Notifier.Channels {
		switch name {
		case "email":
			ch, err := notify.NewEmail(cfg.SMTP)
			if err != nil {
				log.Warnf("Skipping email channel: %v", err)
				continue
			}
			channels = append(channels, ch)

		case "webhook":
			ch, err := notify.NewWebhook(cfg.Webhook)
			if err != nil {
				log.Warnf("Skipping webhook channel: %v", err)
				continue
			}
			channels = append(channels, ch)

		case "telegram":
			ch, err := notify.NewTelegram(cfg.Telegram)
			if err != nil {
				log.Warnf("Skipping telegram channel: %v", err)
				continue
			}
			channels = append(channels, ch)

		default:
			log.Warnf("Unknown notification channel %q", name)
		}
	}

	return channels
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

// Package analyzer consumes market events, enriches them with company
// news and sentiment, and publishes news alerts. Processing is keyed by
// deterministic alert identifiers so redeliveries from the bus never
// produce a second alert.
package analyzer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"sentinel/internal/adapters/config"
	"sentinel/internal/adapters/news"
	"sentinel/internal/bus"
	"sentinel/internal/events"
	"sentinel/internal/metrics"
	"sentinel/pkg/errors"
	"sentinel/pkg/logger"
	"sentinel/pkg/retry"
)

// ConsumerGroup identifies the analyzer's shared stream on the bus
const ConsumerGroup = "news_analyzer"

// receiveBackoff spaces out reconnect attempts after a receive failure
const receiveBackoff = 5 * time.Second

// IdempotencyStore claims alert identifiers before enrichment starts.
// SetNX returns false when another consumer already holds the claim.
type IdempotencyStore interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Analyzer is the news analysis stage of the pipeline
type Analyzer struct {
	cfg     config.AnalyzerConfig
	eventCh bus.Bus
	source  news.Source
	idem    IdempotencyStore
	fetcher *retry.Retrier
	pub     *retry.Retrier
	log     *logger.Logger

	mu          sync.RWMutex
	lastHandled time.Time
	processed   int64
	published   int64
}

// New creates a news analyzer
func New(cfg config.AnalyzerConfig, b bus.Bus, source news.Source, idem IdempotencyStore) *Analyzer {
	return &Analyzer{
		cfg:     cfg,
		eventCh: b,
		source:  source,
		idem:    idem,
		fetcher: retry.New(retry.Config{
			MaxAttempts:  cfg.MaxNewsAttempts,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		}),
		pub: retry.New(retry.DefaultConfig()),
		log: logger.Get().With("component", "analyzer"),
	}
}

// Run consumes market events until ctx is cancelled. Messages are
// handled one at a time; partition keying upstream keeps per-symbol
// order intact while instances scale out via the consumer group.
func (a *Analyzer) Run(ctx context.Context) error {
	sub, err := a.eventCh.Subscribe(events.TopicMarketEvents, ConsumerGroup)
	if err != nil {
		return errors.Wrapf(err, "subscribe %s", events.TopicMarketEvents)
	}
	defer sub.Close()

	a.log.Info("Analyzer consuming", "topic", events.TopicMarketEvents, "group", ConsumerGroup)

	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				a.log.Info("Analyzer stopping")
				return nil
			}
			a.log.Errorf("Receive failed, retrying in %s: %v", receiveBackoff, err)
			select {
			case <-time.After(receiveBackoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		a.handle(ctx, msg.Value)
		a.recordHandled()
	}
}

// handle processes one market event payload end to end. It never
// returns an error: permanent failures are logged and the message is
// consumed, because redelivery cannot fix them.
func (a *Analyzer) handle(ctx context.Context, payload []byte) {
	ev, err := events.DecodeMarketEvent(payload)
	if err != nil {
		a.log.Warn("Discarding malformed market event", "error", err)
		metrics.EventsSkipped.WithLabelValues("malformed").Inc()
		return
	}

	log := a.log.With("symbol", ev.Symbol, "event_id", ev.ID)

	alertID := events.AlertID(ev.ID)
	idemKey := "analyzer:alert:" + alertID

	claimed, err := a.idem.SetNX(ctx, idemKey, ev.ID, a.cfg.IdempotencyTTL)
	if err != nil {
		// Losing the idempotency store degrades dedup to best effort;
		// a duplicate alert beats a dropped one under at-least-once
		// delivery.
		log.Warn("Idempotency store unavailable, processing without dedup", "error", err)
		claimed = true
	}
	if !claimed {
		log.Debug("Duplicate suppressed", "alert_id", alertID)
		metrics.DuplicatesSuppressed.WithLabelValues("analyzer").Inc()
		return
	}

	if ev.Volume < a.cfg.MinVolume {
		log.Debug("Skipping low volume event", "volume", ev.Volume)
		metrics.EventsSkipped.WithLabelValues("low_volume").Inc()
		return
	}

	alert, skip := a.enrich(ctx, log, ev, alertID)
	if skip {
		return
	}

	err = a.pub.Do(ctx, func(ctx context.Context) error {
		return a.eventCh.Publish(ctx, events.TopicNewsAlerts, alert.Event.Symbol, alert)
	})
	if err != nil {
		// Release the claim so a redelivery can try again
		if delErr := a.idem.Delete(ctx, idemKey); delErr != nil {
			log.Warn("Failed to release idempotency claim", "error", delErr)
		}
		log.Errorf("Failed to publish news alert %s: %v", alertID, err)
		metrics.BusPublishErrors.WithLabelValues(events.TopicNewsAlerts).Inc()
		return
	}

	kind := "scored"
	if alert.Sentiment == nil {
		kind = "degraded"
	}
	log.Info("News alert published",
		"alert_id", alert.ID,
		"kind", kind,
		"summary", alert.Summary,
	)
	metrics.AlertsPublished.WithLabelValues(kind).Inc()
	a.recordPublished()
}

// enrich fetches news and scores sentiment for a qualifying event.
// Returns skip=true when no alert should be published. Enrichment
// failures after retries produce a degraded alert with nil sentiment
// rather than dropping a qualifying movement.
func (a *Analyzer) enrich(ctx context.Context, log *logger.Logger, ev events.MarketEvent, alertID string) (events.NewsAlert, bool) {
	since := time.Now().Add(-a.cfg.Lookback)

	var items []news.Item
	err := a.fetcher.Do(ctx, func(ctx context.Context) error {
		var fetchErr error
		items, fetchErr = a.source.GetNews(ctx, ev.Symbol, since)
		return fetchErr
	})

	switch {
	case err == nil && len(items) == 0, errors.Is(err, errors.ErrNoNewsFound):
		log.Warn("No news found, skipping event")
		metrics.EventsSkipped.WithLabelValues("no_news").Inc()
		return events.NewsAlert{}, true

	case err != nil:
		log.Errorf("News enrichment failed for %s, emitting degraded alert: %v", ev.Symbol, err)
		summary := fmt.Sprintf("Significant movement of %s (%s%%), news enrichment unavailable",
			ev.Symbol, ev.PercentChange.StringFixed(2))
		return events.NewNewsAlert(ev, nil, nil, summary, time.Now()), false
	}

	score := ScoreItems(items, a.cfg.TopN)

	if !a.cfg.AlwaysForward && math.Abs(score.Value) < a.cfg.SentimentThreshold {
		log.Debug("Sentiment below threshold, skipping", "value", score.Value)
		metrics.EventsSkipped.WithLabelValues("weak_sentiment").Inc()
		return events.NewsAlert{}, true
	}

	headlines := make([]string, 0, a.cfg.MaxHeadlines)
	for _, item := range items {
		if len(headlines) == a.cfg.MaxHeadlines {
			break
		}
		headlines = append(headlines, item.Headline)
	}

	return events.NewNewsAlert(ev, score, headlines, renderSummary(score), time.Now()), false
}

// renderSummary builds the human readable one-liner carried by alerts
func renderSummary(score *events.SentimentScore) string {
	summary := fmt.Sprintf("%d %s news articles", score.Articles, score.Label)
	if len(score.Keywords) > 0 {
		limit := len(score.Keywords)
		if limit > 3 {
			limit = 3
		}
		summary += ". Key topics: " + strings.Join(score.Keywords[:limit], ", ")
	}
	return summary
}

// LastHandled reports when the consumer loop last finished a message.
// Readiness probes use it to detect a stalled loop.
func (a *Analyzer) LastHandled() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastHandled
}

// Stats returns processed and published counters for the status surface
func (a *Analyzer) Stats() (processed, published int64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.processed, a.published
}

func (a *Analyzer) recordHandled() {
	a.mu.Lock()
	a.lastHandled = time.Now()
	a.processed++
	a.mu.Unlock()
	metrics.RecordLoopRun("analyzer")
}

func (a *Analyzer) recordPublished() {
	a.mu.Lock()
	a.published++
	a.mu.Unlock()
}

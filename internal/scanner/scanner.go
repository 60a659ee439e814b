// Package scanner implements the scheduled market scan loop: pull
// quotes for the watch-list, filter significant movements, deduplicate
// against recently emitted events and publish market events.
package scanner

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"sentinel/internal/adapters/config"
	"sentinel/internal/adapters/quotes"
	"sentinel/internal/bus"
	"sentinel/internal/events"
	"sentinel/internal/metrics"
	"sentinel/internal/workers"
	"sentinel/pkg/retry"
)

// WatchedInstrument tracks per-symbol scan state. Owned exclusively by
// the scan loop; never shared across components.
type WatchedInstrument struct {
	Symbol          string
	LastPrice       decimal.Decimal
	LastEventAt     time.Time
	LastEventChange decimal.Decimal // percent change at last emit, signed
}

// Scanner is the market scan worker. It runs on the interval scheduler
// and owns the watch-list state.
type Scanner struct {
	*workers.BaseWorker

	cfg     config.ScannerConfig
	source  quotes.Source
	eventCh bus.Bus
	fetcher *retry.Retrier
	pub     *retry.Retrier

	mu          sync.Mutex
	instruments map[string]*WatchedInstrument
}

// New creates a market scanner
func New(cfg config.ScannerConfig, source quotes.Source, b bus.Bus) *Scanner {
	return &Scanner{
		BaseWorker: workers.NewBaseWorker("market_scanner", cfg.Interval, true),
		cfg:        cfg,
		source:     source,
		eventCh:    b,
		fetcher: retry.New(retry.Config{
			MaxAttempts:  cfg.MaxFetchAttempts,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
		}),
		pub:         retry.New(retry.DefaultConfig()),
		instruments: make(map[string]*WatchedInstrument, len(cfg.Watchlist)),
	}
}

// Run executes one scan tick: fetch, filter, dedup, publish
func (s *Scanner) Run(ctx context.Context) error {
	start := time.Now()
	defer func() {
		metrics.ScanDuration.Observe(time.Since(start).Seconds())
		metrics.RecordLoopRun("scanner")
	}()

	batch, err := s.fetchQuotes(ctx)
	if err != nil {
		// A dead quote source degrades this tick but never kills the
		// scheduler; the next tick starts fresh.
		s.Log().Errorf("Scan tick degraded, quote fetch exhausted retries: %v", err)
		metrics.ScanTicks.WithLabelValues("degraded").Inc()
		s.RecordError(err)
		return nil
	}

	emitted := 0
	for _, symbol := range s.cfg.Watchlist {
		quote, ok := batch[symbol]
		if !ok {
			// Per-symbol failure was already logged by the adapter;
			// siblings continue.
			continue
		}

		if s.processQuote(ctx, quote) {
			emitted++
		}
	}

	s.Log().Info("Scan tick completed",
		"quotes", len(batch),
		"emitted", emitted,
		"duration", time.Since(start),
	)
	metrics.ScanTicks.WithLabelValues("ok").Inc()
	s.RecordRun()
	return nil
}

// fetchQuotes pulls the batch with bounded exponential backoff
func (s *Scanner) fetchQuotes(ctx context.Context) (map[string]quotes.Quote, error) {
	var batch map[string]quotes.Quote
	err := s.fetcher.Do(ctx, func(ctx context.Context) error {
		var fetchErr error
		batch, fetchErr = s.source.GetQuotes(ctx, s.cfg.Watchlist)
		return fetchErr
	})
	return batch, err
}

// processQuote applies the significance filter and dedup rules to one
// quote and publishes a market event when they pass. Returns true when
// an event was published.
func (s *Scanner) processQuote(ctx context.Context, quote quotes.Quote) bool {
	s.mu.Lock()
	inst, seen := s.instruments[quote.Symbol]
	if !seen || inst.LastPrice.IsZero() {
		// First sighting establishes the baseline; no event can be
		// derived from a single observation.
		s.instruments[quote.Symbol] = &WatchedInstrument{
			Symbol:    quote.Symbol,
			LastPrice: quote.Price,
		}
		s.mu.Unlock()
		return false
	}

	pct := percentChange(inst.LastPrice, quote.Price)
	threshold := decimal.NewFromFloat(s.cfg.Threshold)

	// Significance filter runs before anything downstream
	if pct.Abs().LessThan(threshold) {
		inst.LastPrice = quote.Price
		s.mu.Unlock()
		return false
	}

	if s.suppressed(inst, pct, quote.Timestamp) {
		inst.LastPrice = quote.Price
		s.mu.Unlock()
		s.Log().Debug("Duplicate suppressed",
			"symbol", quote.Symbol,
			"percent_change", pct,
		)
		metrics.DuplicatesSuppressed.WithLabelValues("scanner").Inc()
		return false
	}
	s.mu.Unlock()

	ev := events.NewMarketEvent(quote.Symbol, quote.Price, pct, quote.Volume, quote.Timestamp, s.cfg.EffectiveCooldown())

	err := s.pub.Do(ctx, func(ctx context.Context) error {
		return s.eventCh.Publish(ctx, events.TopicMarketEvents, ev.Symbol, ev)
	})
	if err != nil {
		// State is left untouched so the movement re-qualifies on the
		// next tick instead of being lost.
		s.Log().Errorf("Failed to publish market event for %s: %v", ev.Symbol, err)
		metrics.BusPublishErrors.WithLabelValues(events.TopicMarketEvents).Inc()
		return false
	}

	s.mu.Lock()
	inst.LastPrice = quote.Price
	inst.LastEventAt = quote.Timestamp
	inst.LastEventChange = pct
	s.mu.Unlock()

	s.Log().Info("Market event published",
		"symbol", ev.Symbol,
		"percent_change", ev.PercentChange,
		"price", ev.Price,
		"event_id", ev.ID,
	)
	metrics.MarketEventsEmitted.WithLabelValues(ev.Symbol).Inc()
	return true
}

// suppressed reports whether an event for this movement falls inside
// the cooldown window. A movement in the same direction re-qualifies
// only when it carries past the previous one by the configured margin;
// a reversal always qualifies.
func (s *Scanner) suppressed(inst *WatchedInstrument, pct decimal.Decimal, now time.Time) bool {
	if inst.LastEventAt.IsZero() {
		return false
	}
	if now.Sub(inst.LastEventAt) >= s.cfg.EffectiveCooldown() {
		return false
	}
	if pct.Sign() != inst.LastEventChange.Sign() {
		return false
	}

	margin := decimal.NewFromFloat(s.cfg.FurtherMoveMargin)
	return pct.Abs().LessThan(inst.LastEventChange.Abs().Add(margin))
}

// Instrument returns a copy of the tracked state for a symbol, or
// false when the symbol has not been observed yet.
func (s *Scanner) Instrument(symbol string) (WatchedInstrument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instruments[symbol]
	if !ok {
		return WatchedInstrument{}, false
	}
	return *inst, true
}

// percentChange computes the signed percent change from prev to cur
func percentChange(prev, cur decimal.Decimal) decimal.Decimal {
	if prev.IsZero() {
		return decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	return cur.Sub(prev).Div(prev).Mul(hundred)
}

var _ workers.Worker = (*Scanner)(nil)

package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/adapters/config"
	"sentinel/internal/adapters/quotes"
	"sentinel/internal/bus"
	"sentinel/internal/events"
	"sentinel/pkg/errors"
)

// Mock quote source for testing
type mockSource struct {
	quotes map[string]quotes.Quote
	err    error
	calls  int
}

func (m *mockSource) GetQuotes(ctx context.Context, symbols []string) (map[string]quotes.Quote, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.quotes, nil
}

func testConfig() config.ScannerConfig {
	return config.ScannerConfig{
		Watchlist:         []string{"ACME"},
		Interval:          5 * time.Minute,
		Threshold:         5.0,
		Cooldown:          30 * time.Minute,
		FurtherMoveMargin: 1.0,
		MaxFetchAttempts:  1,
	}
}

func setQuote(src *mockSource, symbol string, price float64, at time.Time) {
	src.quotes = map[string]quotes.Quote{
		symbol: {
			Symbol:    symbol,
			Price:     decimal.NewFromFloat(price),
			Volume:    1_000_000,
			Timestamp: at,
		},
	}
}

func receiveEvent(t *testing.T, sub bus.Subscription) events.MarketEvent {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := sub.Receive(ctx)
	require.NoError(t, err)

	ev, err := events.DecodeMarketEvent(msg.Value)
	require.NoError(t, err)
	return ev
}

func assertNoEvent(t *testing.T, sub bus.Subscription) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	msg, err := sub.Receive(ctx)
	require.Error(t, err, "unexpected event: %s", string(msg.Value))
}

func TestScanner_EmitsOnSignificantMove(t *testing.T) {
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(events.TopicMarketEvents, "test")
	require.NoError(t, err)

	src := &mockSource{}
	s := New(testConfig(), src, b)

	now := time.Now()

	// First tick establishes the baseline
	setQuote(src, "ACME", 100.00, now)
	require.NoError(t, s.Run(context.Background()))
	assertNoEvent(t, sub)

	// 6% move crosses the 5% threshold
	setQuote(src, "ACME", 106.00, now.Add(5*time.Minute))
	require.NoError(t, s.Run(context.Background()))

	ev := receiveEvent(t, sub)
	assert.Equal(t, "ACME", ev.Symbol)
	assert.Equal(t, events.SchemaVersion, ev.Version)
	assert.NotEmpty(t, ev.ID)
	assert.True(t, ev.PercentChange.Equal(decimal.NewFromFloat(6.0)),
		"expected +6%%, got %s", ev.PercentChange)
	assert.True(t, ev.Price.Equal(decimal.NewFromFloat(106.00)))
}

func TestScanner_BelowThresholdIsSilent(t *testing.T) {
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(events.TopicMarketEvents, "test")
	require.NoError(t, err)

	src := &mockSource{}
	s := New(testConfig(), src, b)

	now := time.Now()
	setQuote(src, "ACME", 100.00, now)
	require.NoError(t, s.Run(context.Background()))

	setQuote(src, "ACME", 104.00, now.Add(5*time.Minute))
	require.NoError(t, s.Run(context.Background()))

	assertNoEvent(t, sub)
}

func TestScanner_CooldownSuppressesRepeat(t *testing.T) {
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(events.TopicMarketEvents, "test")
	require.NoError(t, err)

	src := &mockSource{}
	s := New(testConfig(), src, b)

	now := time.Now()
	setQuote(src, "ACME", 100.00, now)
	require.NoError(t, s.Run(context.Background()))

	setQuote(src, "ACME", 106.00, now.Add(5*time.Minute))
	require.NoError(t, s.Run(context.Background()))
	receiveEvent(t, sub)

	// Another move in the same direction inside the cooldown, not past
	// the margin, stays quiet
	setQuote(src, "ACME", 112.00, now.Add(10*time.Minute))
	require.NoError(t, s.Run(context.Background()))
	assertNoEvent(t, sub)
}

func TestScanner_FurtherMoveOverridesCooldown(t *testing.T) {
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(events.TopicMarketEvents, "test")
	require.NoError(t, err)

	src := &mockSource{}
	s := New(testConfig(), src, b)

	now := time.Now()
	setQuote(src, "ACME", 100.00, now)
	require.NoError(t, s.Run(context.Background()))

	setQuote(src, "ACME", 106.00, now.Add(5*time.Minute))
	require.NoError(t, s.Run(context.Background()))
	first := receiveEvent(t, sub)

	// 8% on top of the last observation beats the 6% + 1% margin
	setQuote(src, "ACME", 114.48, now.Add(10*time.Minute))
	require.NoError(t, s.Run(context.Background()))

	second := receiveEvent(t, sub)
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, second.PercentChange.GreaterThan(decimal.NewFromFloat(7.0)))
}

func TestScanner_ReversalBypassesCooldown(t *testing.T) {
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(events.TopicMarketEvents, "test")
	require.NoError(t, err)

	src := &mockSource{}
	s := New(testConfig(), src, b)

	now := time.Now()
	setQuote(src, "ACME", 100.00, now)
	require.NoError(t, s.Run(context.Background()))

	setQuote(src, "ACME", 106.00, now.Add(5*time.Minute))
	require.NoError(t, s.Run(context.Background()))
	receiveEvent(t, sub)

	// A crash right after the rally is its own signal
	setQuote(src, "ACME", 99.00, now.Add(10*time.Minute))
	require.NoError(t, s.Run(context.Background()))

	ev := receiveEvent(t, sub)
	assert.True(t, ev.PercentChange.Sign() < 0)
}

func TestScanner_DegradedTickIsNotFatal(t *testing.T) {
	b := bus.NewMemoryBus()
	src := &mockSource{err: errors.Wrap(errors.ErrSourceUnavailable, "api down")}
	s := New(testConfig(), src, b)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 1, src.calls)

	// Next tick recovers and starts tracking again
	src.err = nil
	setQuote(src, "ACME", 100.00, time.Now())
	require.NoError(t, s.Run(context.Background()))

	inst, ok := s.Instrument("ACME")
	require.True(t, ok)
	assert.True(t, inst.LastPrice.Equal(decimal.NewFromFloat(100.00)))
}

func TestScanner_MissingSymbolSkipsSiblings(t *testing.T) {
	cfg := testConfig()
	cfg.Watchlist = []string{"ACME", "GONE"}

	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(events.TopicMarketEvents, "test")
	require.NoError(t, err)

	src := &mockSource{}
	s := New(cfg, src, b)

	now := time.Now()
	setQuote(src, "ACME", 100.00, now)
	require.NoError(t, s.Run(context.Background()))

	setQuote(src, "ACME", 106.00, now.Add(5*time.Minute))
	require.NoError(t, s.Run(context.Background()))

	ev := receiveEvent(t, sub)
	assert.Equal(t, "ACME", ev.Symbol)

	_, tracked := s.Instrument("GONE")
	assert.False(t, tracked)
}

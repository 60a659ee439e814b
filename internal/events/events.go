package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"sentinel/pkg/errors"
)

// SchemaVersion is carried by every payload so producers and consumers
// can deploy independently.
const SchemaVersion = "1"

// Topic names
const (
	TopicMarketEvents = "market_events"
	TopicNewsAlerts   = "news_alerts"
)

// MarketEvent is published by the scanner when a watched symbol moves
// past the significance threshold. Immutable once published.
type MarketEvent struct {
	Version       string          `json:"version"`
	ID            string          `json:"id"`
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	PercentChange decimal.Decimal `json:"percent_change"`
	Volume        int64           `json:"volume"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewMarketEvent builds a MarketEvent with a deterministic identifier.
// The identifier buckets the timestamp by the cooldown window, so a
// rescan of the same symbol within one window produces the same ID and
// downstream consumers can deduplicate redeliveries.
func NewMarketEvent(symbol string, price, percentChange decimal.Decimal, volume int64, ts time.Time, bucket time.Duration) MarketEvent {
	return MarketEvent{
		Version:       SchemaVersion,
		ID:            MarketEventID(symbol, percentChange, ts, bucket),
		Symbol:        symbol,
		Price:         price,
		PercentChange: percentChange,
		Volume:        volume,
		Timestamp:     ts,
	}
}

// MarketEventID derives the deterministic event identifier from the
// symbol, the timestamp bucket and the whole-percent movement. The
// percent component keeps a further movement inside one bucket distinct
// from the event it overrides, while a rescan of the same movement
// still collides and deduplicates.
func MarketEventID(symbol string, percentChange decimal.Decimal, ts time.Time, bucket time.Duration) string {
	if bucket <= 0 {
		bucket = time.Minute
	}
	pct := percentChange.Round(0).IntPart()
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", symbol, ts.Truncate(bucket).Unix(), pct)))
	return hex.EncodeToString(sum[:])[:16]
}

// SentimentScore is the aggregate sentiment attached to a news alert.
// Value is bounded to [-1, 1]; Magnitude reflects how much scored
// vocabulary backed the value.
type SentimentScore struct {
	Value     float64  `json:"value"`
	Magnitude float64  `json:"magnitude"`
	Label     string   `json:"label"`
	Articles  int      `json:"articles"`
	Keywords  []string `json:"keywords,omitempty"`
}

// NewsAlert is published by the analyzer for market events whose news
// sentiment crossed the significance threshold (or unconditionally when
// forwarding is configured). A nil Sentiment marks a degraded alert:
// the move qualified but news enrichment failed.
type NewsAlert struct {
	Version   string          `json:"version"`
	ID        string          `json:"id"`
	Event     MarketEvent     `json:"event"`
	Sentiment *SentimentScore `json:"sentiment,omitempty"`
	Headlines []string        `json:"headlines,omitempty"`
	Summary   string          `json:"summary"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewNewsAlert builds a NewsAlert whose identifier is derived from the
// originating event, guaranteeing at most one alert per market event.
func NewNewsAlert(ev MarketEvent, sentiment *SentimentScore, headlines []string, summary string, ts time.Time) NewsAlert {
	return NewsAlert{
		Version:   SchemaVersion,
		ID:        AlertID(ev.ID),
		Event:     ev,
		Sentiment: sentiment,
		Headlines: headlines,
		Summary:   summary,
		Timestamp: ts,
	}
}

// AlertID derives the alert identifier from a market event identifier
func AlertID(eventID string) string {
	sum := sha256.Sum256([]byte("alert|" + eventID))
	return hex.EncodeToString(sum[:])[:16]
}

// DecodeMarketEvent parses and validates a market event payload.
// Malformed payloads are permanent errors: redelivery cannot fix them.
func DecodeMarketEvent(data []byte) (MarketEvent, error) {
	var ev MarketEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return MarketEvent{}, errors.Wrap(errors.ErrPermanentUpstream, err.Error())
	}
	if ev.ID == "" || ev.Symbol == "" {
		return MarketEvent{}, errors.Wrap(errors.ErrPermanentUpstream, "market event missing id or symbol")
	}
	return ev, nil
}

// DecodeNewsAlert parses and validates a news alert payload
func DecodeNewsAlert(data []byte) (NewsAlert, error) {
	var alert NewsAlert
	if err := json.Unmarshal(data, &alert); err != nil {
		return NewsAlert{}, errors.Wrap(errors.ErrPermanentUpstream, err.Error())
	}
	if alert.ID == "" || alert.Event.Symbol == "" {
		return NewsAlert{}, errors.Wrap(errors.ErrPermanentUpstream, "news alert missing id or event")
	}
	return alert, nil
}

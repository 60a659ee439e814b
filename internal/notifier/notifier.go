// Package notifier consumes news alerts and dispatches them through
// the configured channels. Dispatch is idempotent per (alert, channel):
// a redelivered alert is only sent on channels that have not delivered
// it yet.
package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"sentinel/internal/adapters/config"
	"sentinel/internal/adapters/notify"
	"sentinel/internal/bus"
	"sentinel/internal/events"
	"sentinel/internal/metrics"
	"sentinel/pkg/errors"
	"sentinel/pkg/logger"
	"sentinel/pkg/retry"
)

// ConsumerGroup identifies the notifier's shared stream on the bus
const ConsumerGroup = "notification_service"

// receiveBackoff spaces out reconnect attempts after a receive failure
const receiveBackoff = 5 * time.Second

// Dispatcher is the notification stage of the pipeline
type Dispatcher struct {
	cfg      config.NotifierConfig
	eventCh  bus.Bus
	store    Store
	channels []notify.Notifier
	retrier  *retry.Retrier
	log      *logger.Logger

	mu          sync.RWMutex
	lastHandled time.Time
	dispatched  int64
	failed      int64
}

// New creates a dispatcher over the given channels
func New(cfg config.NotifierConfig, b bus.Bus, store Store, channels []notify.Notifier) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		eventCh:  b,
		store:    store,
		channels: channels,
		retrier: retry.New(retry.Config{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     time.Minute,
			Multiplier:   2.0,
		}),
		log: logger.Get().With("component", "notifier"),
	}
}

// Run consumes news alerts until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context) error {
	sub, err := d.eventCh.Subscribe(events.TopicNewsAlerts, ConsumerGroup)
	if err != nil {
		return errors.Wrapf(err, "subscribe %s", events.TopicNewsAlerts)
	}
	defer sub.Close()

	d.log.Info("Notifier consuming",
		"topic", events.TopicNewsAlerts,
		"group", ConsumerGroup,
		"channels", channelNames(d.channels),
	)

	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.log.Info("Notifier stopping")
				return nil
			}
			d.log.Errorf("Receive failed, retrying in %s: %v", receiveBackoff, err)
			select {
			case <-time.After(receiveBackoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		d.handleAlert(ctx, msg.Value)
		d.recordHandled()
	}
}

// RunMarketEvents consumes raw market events and forwards them as
// plain movement notifications. Off by default; alerts enriched by the
// analyzer remain the primary stream.
func (d *Dispatcher) RunMarketEvents(ctx context.Context) error {
	if !d.cfg.ConsumeMarketEvents {
		return nil
	}

	sub, err := d.eventCh.Subscribe(events.TopicMarketEvents, ConsumerGroup)
	if err != nil {
		return errors.Wrapf(err, "subscribe %s", events.TopicMarketEvents)
	}
	defer sub.Close()

	d.log.Info("Notifier consuming raw market events", "topic", events.TopicMarketEvents)

	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.log.Errorf("Receive failed, retrying in %s: %v", receiveBackoff, err)
			select {
			case <-time.After(receiveBackoff):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		ev, err := events.DecodeMarketEvent(msg.Value)
		if err != nil {
			d.log.Warn("Discarding malformed market event", "error", err)
			continue
		}
		// Raw events reuse the dispatch ledger with a distinct key
		// space so they never collide with analyzer alerts.
		d.dispatch(ctx, "ev:"+ev.ID, RenderMarketEvent(ev))
		d.recordHandled()
	}
}

// handleAlert decodes and dispatches one news alert payload
func (d *Dispatcher) handleAlert(ctx context.Context, payload []byte) {
	alert, err := events.DecodeNewsAlert(payload)
	if err != nil {
		d.log.Warn("Discarding malformed news alert", "error", err)
		metrics.EventsSkipped.WithLabelValues("malformed_alert").Inc()
		return
	}

	d.dispatch(ctx, alert.ID, RenderAlert(alert))
}

// dispatch fans the message out to all channels concurrently. Channels
// fail independently: one channel exhausting its retries never blocks
// or cancels the others.
func (d *Dispatcher) dispatch(ctx context.Context, dispatchID string, msg notify.Message) {
	var wg sync.WaitGroup
	for _, ch := range d.channels {
		wg.Add(1)
		go func(ch notify.Notifier) {
			defer wg.Done()
			d.dispatchChannel(ctx, dispatchID, ch, msg)
		}(ch)
	}
	wg.Wait()
}

// dispatchChannel delivers one message on one channel with retry
func (d *Dispatcher) dispatchChannel(ctx context.Context, dispatchID string, ch notify.Notifier, msg notify.Message) {
	log := d.log.With("alert_id", dispatchID, "channel", ch.Name())

	attemptID := uuid.NewString()
	claimed, err := d.store.BeginDispatch(ctx, dispatchID, ch.Name(), attemptID)
	if err != nil {
		// A dead ledger degrades dedup to best effort; a duplicate
		// notification beats a dropped one under at-least-once
		// delivery.
		log.Warn("Dispatch store unavailable, sending without dedup", "error", err)
		claimed = true
	}
	if !claimed {
		log.Debug("Duplicate suppressed")
		metrics.DuplicatesSuppressed.WithLabelValues("notifier").Inc()
		return
	}

	start := time.Now()
	attempts := 0
	err = d.retrier.Do(ctx, func(ctx context.Context) error {
		attempts++
		return ch.Send(ctx, msg)
	})
	duration := time.Since(start)

	if err != nil {
		if storeErr := d.store.Fail(ctx, dispatchID, ch.Name(), attempts, err.Error()); storeErr != nil {
			log.Warn("Failed to record dispatch failure", "error", storeErr)
		}
		// Operator-visible: the alert reached us but this channel
		// never delivered it.
		log.Errorf("Dispatch failed on %s after %d attempts: %v", ch.Name(), attempts, err)
		metrics.RecordDispatch(ch.Name(), "failed", duration)
		d.recordFailed()
		return
	}

	if storeErr := d.store.Complete(ctx, dispatchID, ch.Name(), attempts); storeErr != nil {
		log.Warn("Failed to record dispatch completion", "error", storeErr)
	}
	log.Info("Notification sent", "attempts", attempts, "duration", duration)
	metrics.RecordDispatch(ch.Name(), "sent", duration)
	d.recordDispatched()
}

// LastHandled reports when the consumer loop last finished a message
func (d *Dispatcher) LastHandled() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastHandled
}

// Stats returns dispatch counters for the status surface
func (d *Dispatcher) Stats() (dispatched, failed int64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dispatched, d.failed
}

func (d *Dispatcher) recordHandled() {
	d.mu.Lock()
	d.lastHandled = time.Now()
	d.mu.Unlock()
	metrics.RecordLoopRun("notifier")
}

func (d *Dispatcher) recordDispatched() {
	d.mu.Lock()
	d.dispatched++
	d.mu.Unlock()
}

func (d *Dispatcher) recordFailed() {
	d.mu.Lock()
	d.failed++
	d.mu.Unlock()
}

func channelNames(channels []notify.Notifier) []string {
	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = ch.Name()
	}
	return names
}

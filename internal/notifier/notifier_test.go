package notifier

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/internal/adapters/config"
	"sentinel/internal/adapters/notify"
	"sentinel/internal/bus"
	"sentinel/internal/events"
	"sentinel/pkg/errors"
)

// Mock notification channel for testing
type mockChannel struct {
	name string

	mu       sync.Mutex
	sent     []notify.Message
	calls    int
	failures int   // fail this many calls before succeeding
	sendErr  error // error used for failures
}

func newMockChannel(name string) *mockChannel {
	return &mockChannel{
		name:    name,
		sendErr: errors.Wrap(errors.ErrSourceUnavailable, "transport down"),
	}
}

func (m *mockChannel) Name() string { return m.name }

func (m *mockChannel) Send(ctx context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls <= m.failures {
		return m.sendErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockChannel) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mockChannel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func notifierConfig() config.NotifierConfig {
	return config.NotifierConfig{
		Channels:         []string{"mock"},
		MaxAttempts:      3,
		RetryDelay:       time.Millisecond,
		RecordTTL:        24 * time.Hour,
		EvictionInterval: time.Hour,
	}
}

func testAlert(t *testing.T) ([]byte, events.NewsAlert) {
	t.Helper()

	ev := events.NewMarketEvent("ACME",
		decimal.NewFromFloat(106.00),
		decimal.NewFromFloat(6.0),
		1_000_000,
		time.Now().UTC(),
		30*time.Minute,
	)
	alert := events.NewNewsAlert(ev,
		&events.SentimentScore{Value: 0.7, Magnitude: 0.7, Label: "positive", Articles: 2},
		[]string{"ACME shares surge"},
		"2 positive news articles",
		time.Now().UTC(),
	)

	data, err := json.Marshal(alert)
	require.NoError(t, err)
	return data, alert
}

func TestDispatcher_SendsOnAllChannels(t *testing.T) {
	email := newMockChannel("email")
	webhook := newMockChannel("webhook")
	store := NewMemoryStore()

	d := New(notifierConfig(), bus.NewMemoryBus(), store, []notify.Notifier{email, webhook})

	payload, alert := testAlert(t)
	d.handleAlert(context.Background(), payload)

	assert.Equal(t, 1, email.sentCount())
	assert.Equal(t, 1, webhook.sentCount())

	rec, err := store.Get(context.Background(), alert.ID, "email")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusSent, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
}

func TestDispatcher_RedeliveryIsIdempotent(t *testing.T) {
	ch := newMockChannel("email")
	store := NewMemoryStore()

	d := New(notifierConfig(), bus.NewMemoryBus(), store, []notify.Notifier{ch})

	payload, _ := testAlert(t)
	d.handleAlert(context.Background(), payload)
	d.handleAlert(context.Background(), payload)

	assert.Equal(t, 1, ch.sentCount(), "redelivered alert must not send twice")
}

func TestDispatcher_ChannelsFailIndependently(t *testing.T) {
	broken := newMockChannel("email")
	broken.failures = 100
	healthy := newMockChannel("webhook")
	store := NewMemoryStore()

	d := New(notifierConfig(), bus.NewMemoryBus(), store, []notify.Notifier{broken, healthy})

	payload, alert := testAlert(t)
	d.handleAlert(context.Background(), payload)

	assert.Equal(t, 0, broken.sentCount())
	assert.Equal(t, 1, healthy.sentCount())

	rec, err := store.Get(context.Background(), alert.ID, "email")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.NotEmpty(t, rec.LastError)

	rec, err = store.Get(context.Background(), alert.ID, "webhook")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusSent, rec.Status)
}

func TestDispatcher_TransientFailureRetriesThenSendsOnce(t *testing.T) {
	ch := newMockChannel("email")
	ch.failures = 2
	store := NewMemoryStore()

	d := New(notifierConfig(), bus.NewMemoryBus(), store, []notify.Notifier{ch})

	payload, alert := testAlert(t)
	d.handleAlert(context.Background(), payload)

	assert.Equal(t, 3, ch.callCount())
	assert.Equal(t, 1, ch.sentCount(), "exactly one delivery despite retries")

	rec, err := store.Get(context.Background(), alert.ID, "email")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusSent, rec.Status)
	assert.Equal(t, 3, rec.Attempts)
}

func TestDispatcher_NonRetryableFailsFast(t *testing.T) {
	ch := newMockChannel("email")
	ch.failures = 100
	ch.sendErr = errors.Wrap(errors.ErrNonRetryable, "rejected")
	store := NewMemoryStore()

	d := New(notifierConfig(), bus.NewMemoryBus(), store, []notify.Notifier{ch})

	payload, _ := testAlert(t)
	d.handleAlert(context.Background(), payload)

	assert.Equal(t, 1, ch.callCount(), "permanent rejection must not retry")
}

func TestDispatcher_FailedDispatchRetriedOnRedelivery(t *testing.T) {
	ch := newMockChannel("email")
	ch.failures = 3 // first delivery exhausts its three attempts
	store := NewMemoryStore()

	d := New(notifierConfig(), bus.NewMemoryBus(), store, []notify.Notifier{ch})

	payload, _ := testAlert(t)
	d.handleAlert(context.Background(), payload)
	assert.Equal(t, 0, ch.sentCount())

	// A redelivery may claim the pair again because it never sent
	d.handleAlert(context.Background(), payload)
	assert.Equal(t, 1, ch.sentCount())
}

func TestDispatcher_MalformedAlertDiscarded(t *testing.T) {
	ch := newMockChannel("email")
	d := New(notifierConfig(), bus.NewMemoryBus(), NewMemoryStore(), []notify.Notifier{ch})

	d.handleAlert(context.Background(), []byte("not json"))
	assert.Zero(t, ch.callCount())
}

func TestMemoryStore_Evict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.BeginDispatch(ctx, "a1", "email", "attempt-1")
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, "a1", "email", 1))

	removed, err := store.Evict(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, removed, "fresh records stay")

	removed, err = store.Evict(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	rec, err := store.Get(ctx, "a1", "email")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRenderAlert(t *testing.T) {
	_, alert := testAlert(t)

	msg := RenderAlert(alert)
	assert.Contains(t, msg.Subject, "ACME")
	assert.Contains(t, msg.Subject, "up")
	assert.Contains(t, msg.Body, "positive")
	assert.Contains(t, msg.Body, "ACME shares surge")
	assert.Equal(t, alert, msg.Payload)
}

func TestRenderAlert_Degraded(t *testing.T) {
	ev := events.NewMarketEvent("ACME",
		decimal.NewFromFloat(94.00),
		decimal.NewFromFloat(-6.0),
		500_000,
		time.Now().UTC(),
		30*time.Minute,
	)
	alert := events.NewNewsAlert(ev, nil, nil, "news enrichment unavailable", time.Now().UTC())

	msg := RenderAlert(alert)
	assert.Contains(t, msg.Subject, "down")
	assert.Contains(t, msg.Body, "sentiment unavailable")
}

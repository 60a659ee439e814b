package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/pkg/errors"
)

func receive(t *testing.T, sub Subscription) Message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := sub.Receive(ctx)
	require.NoError(t, err)
	return msg
}

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	b := NewMemoryBus()

	sub, err := b.Subscribe("market_events", "g1")
	require.NoError(t, err)

	payload := map[string]string{"symbol": "ACME"}
	require.NoError(t, b.Publish(context.Background(), "market_events", "ACME", payload))

	msg := receive(t, sub)
	assert.Equal(t, "market_events", msg.Topic)
	assert.Equal(t, "ACME", msg.Key)
	assert.JSONEq(t, `{"symbol":"ACME"}`, string(msg.Value))
}

func TestMemoryBus_GroupsEachReceiveEveryMessage(t *testing.T) {
	b := NewMemoryBus()

	analyzer, err := b.Subscribe("market_events", "analyzer")
	require.NoError(t, err)
	notifier, err := b.Subscribe("market_events", "notifier")
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), "market_events", "ACME", "payload"))

	assert.Equal(t, receive(t, analyzer).Value, receive(t, notifier).Value)
}

func TestMemoryBus_GroupMembersShareStream(t *testing.T) {
	b := NewMemoryBus()

	a, err := b.Subscribe("market_events", "analyzer")
	require.NoError(t, err)
	bMember, err := b.Subscribe("market_events", "analyzer")
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), "market_events", "ACME", "only once"))

	// Exactly one member sees the message
	got := receive(t, a)
	assert.NotEmpty(t, got.Value)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = bMember.Receive(ctx)
	assert.Error(t, err)
}

func TestMemoryBus_TopicsAreIsolated(t *testing.T) {
	b := NewMemoryBus()

	sub, err := b.Subscribe("news_alerts", "g1")
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), "market_events", "ACME", "wrong topic"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = sub.Receive(ctx)
	assert.Error(t, err)
}

func TestMemoryBus_ReceiveHonorsContext(t *testing.T) {
	b := NewMemoryBus()

	sub, err := b.Subscribe("market_events", "g1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = sub.Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryBus_ClosedBusRefusesPublish(t *testing.T) {
	b := NewMemoryBus()
	require.NoError(t, b.Close())

	err := b.Publish(context.Background(), "market_events", "ACME", "late")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBusUnavailable))
}

package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/pkg/errors"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := New(fastConfig(3)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	calls := 0
	err := New(fastConfig(3)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.Wrap(errors.ErrSourceUnavailable, "flaky")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	cause := errors.Wrap(errors.ErrNonRetryable, "bad request")
	err := New(fastConfig(3)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, errors.ErrNonRetryable))
	assert.False(t, errors.Is(err, errors.ErrRetryExhausted))
}

func TestDo_ExhaustionWrapsSentinel(t *testing.T) {
	calls := 0
	err := New(fastConfig(3)).Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.Wrap(errors.ErrRateLimited, "slow down")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, errors.Is(err, errors.ErrRetryExhausted))
}

func TestDo_ContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := New(Config{MaxAttempts: 5, InitialDelay: time.Hour}).Do(ctx, func(ctx context.Context) error {
		calls++
		cancel()
		return errors.Wrap(errors.ErrSourceUnavailable, "down")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryable_Taxonomy(t *testing.T) {
	assert.True(t, Retryable(errors.ErrSourceUnavailable))
	assert.True(t, Retryable(errors.ErrRateLimited))
	assert.True(t, Retryable(errors.ErrBusUnavailable))
	assert.True(t, Retryable(errors.ErrTimeout))

	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(errors.ErrPermanentUpstream))
	assert.False(t, Retryable(errors.ErrNonRetryable))
	assert.False(t, Retryable(errors.ErrNoNewsFound))
	assert.False(t, Retryable(context.Canceled))
}

package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock worker for testing
type mockWorker struct {
	*BaseWorker
	runCount int32
	runFunc  func(ctx context.Context) error
}

func newMockWorker(name string, interval time.Duration, enabled bool) *mockWorker {
	return &mockWorker{
		BaseWorker: NewBaseWorker(name, interval, enabled),
	}
}

func (m *mockWorker) Run(ctx context.Context) error {
	atomic.AddInt32(&m.runCount, 1)
	if m.runFunc != nil {
		return m.runFunc(ctx)
	}
	m.RecordRun()
	return nil
}

func (m *mockWorker) runs() int {
	return int(atomic.LoadInt32(&m.runCount))
}

func TestScheduler_StartStop(t *testing.T) {
	scheduler := NewScheduler()

	worker := newMockWorker("scan-loop", 100*time.Millisecond, true)
	scheduler.RegisterWorker(worker)

	require.NoError(t, scheduler.Start(context.Background()))
	assert.True(t, scheduler.IsRunning())

	time.Sleep(250 * time.Millisecond)

	require.NoError(t, scheduler.Stop())
	assert.False(t, scheduler.IsRunning())

	// Immediate run plus at least one tick
	assert.GreaterOrEqual(t, worker.runs(), 2)
}

func TestScheduler_RunsImmediately(t *testing.T) {
	scheduler := NewScheduler()

	worker := newMockWorker("scan-loop", time.Hour, true)
	scheduler.RegisterWorker(worker)

	require.NoError(t, scheduler.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, scheduler.Stop())

	assert.Equal(t, 1, worker.runs(), "first run must not wait for the interval")
}

func TestScheduler_SkipsDisabledWorkers(t *testing.T) {
	scheduler := NewScheduler()

	disabled := newMockWorker("disabled", 50*time.Millisecond, false)
	scheduler.RegisterWorker(disabled)

	require.NoError(t, scheduler.Start(context.Background()))
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, scheduler.Stop())

	assert.Zero(t, disabled.runs())
}

func TestScheduler_WorkerErrorDoesNotStopLoop(t *testing.T) {
	scheduler := NewScheduler()

	worker := newMockWorker("flaky", 50*time.Millisecond, true)
	worker.runFunc = func(ctx context.Context) error {
		worker.RecordError(assert.AnError)
		return assert.AnError
	}
	scheduler.RegisterWorker(worker)

	require.NoError(t, scheduler.Start(context.Background()))
	time.Sleep(180 * time.Millisecond)
	require.NoError(t, scheduler.Stop())

	assert.GreaterOrEqual(t, worker.runs(), 2, "loop must survive worker errors")
}

func TestScheduler_PanicRecovery(t *testing.T) {
	scheduler := NewScheduler()

	worker := newMockWorker("panicky", 50*time.Millisecond, true)
	worker.runFunc = func(ctx context.Context) error {
		panic("boom")
	}
	scheduler.RegisterWorker(worker)

	require.NoError(t, scheduler.Start(context.Background()))
	time.Sleep(180 * time.Millisecond)
	require.NoError(t, scheduler.Stop())

	assert.GreaterOrEqual(t, worker.runs(), 2, "loop must survive panics")
}

func TestScheduler_ContextCancellation(t *testing.T) {
	scheduler := NewScheduler()

	worker := newMockWorker("scan-loop", 50*time.Millisecond, true)
	scheduler.RegisterWorker(worker)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, scheduler.Start(ctx))

	cancel()
	time.Sleep(100 * time.Millisecond)

	countAfterCancel := worker.runs()
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, countAfterCancel, worker.runs(), "no runs after cancellation")

	require.NoError(t, scheduler.Stop())
}

func TestScheduler_DoubleStartFails(t *testing.T) {
	scheduler := NewScheduler()
	scheduler.RegisterWorker(newMockWorker("w", time.Hour, true))

	require.NoError(t, scheduler.Start(context.Background()))
	assert.Error(t, scheduler.Start(context.Background()))
	require.NoError(t, scheduler.Stop())
}

func TestBaseWorker_Health(t *testing.T) {
	w := NewBaseWorker("scan-loop", time.Minute, true)

	assert.True(t, w.LastRun().IsZero())

	w.RecordRun()
	h := w.Health()
	assert.False(t, h.LastRun.IsZero())
	assert.EqualValues(t, 1, h.RunCount)
	assert.Nil(t, h.LastError)

	w.RecordError(assert.AnError)
	h = w.Health()
	assert.EqualValues(t, 2, h.RunCount)
	assert.EqualValues(t, 1, h.ErrorCount)
	assert.Equal(t, assert.AnError, h.LastError)
}

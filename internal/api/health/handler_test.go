package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinel/pkg/errors"
)

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) Status {
	t.Helper()

	var status Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	return status
}

func TestHandleReadiness_AllChecksPass(t *testing.T) {
	h := New("scanner", "dev")
	h.RegisterCheck("always_ok", func(ctx context.Context) error { return nil })

	rec := httptest.NewRecorder()
	h.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	status := decodeStatus(t, rec)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "scanner", status.Service)
}

func TestHandleReadiness_FailingCheckReturns503(t *testing.T) {
	h := New("scanner", "dev")
	h.RegisterCheck("broken", func(ctx context.Context) error {
		return errors.New("dependency down")
	})

	rec := httptest.NewRecorder()
	h.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	status := decodeStatus(t, rec)
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "unhealthy", status.Checks["broken"].Status)
	assert.Contains(t, status.Checks["broken"].Error, "dependency down")
}

func TestHandleHealth_PartialFailureIsDegraded(t *testing.T) {
	h := New("notifier", "dev")
	h.RegisterCheck("ok", func(ctx context.Context) error { return nil })
	h.RegisterCheck("broken", func(ctx context.Context) error {
		return errors.New("down")
	})

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code, "degraded still serves 200")
	status := decodeStatus(t, rec)
	assert.Equal(t, "degraded", status.Status)
}

func TestStalenessCheck(t *testing.T) {
	t.Run("zero time is healthy during startup", func(t *testing.T) {
		check := StalenessCheck(func() time.Time { return time.Time{} }, time.Minute)
		assert.NoError(t, check(context.Background()))
	})

	t.Run("fresh run is healthy", func(t *testing.T) {
		check := StalenessCheck(time.Now, time.Minute)
		assert.NoError(t, check(context.Background()))
	})

	t.Run("stalled loop fails", func(t *testing.T) {
		last := time.Now().Add(-time.Hour)
		check := StalenessCheck(func() time.Time { return last }, time.Minute)

		err := check(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stalled")
	})
}

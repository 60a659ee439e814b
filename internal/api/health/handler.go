package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"sentinel/pkg/logger"
)

// Check verifies one dependency or invariant (a database ping, a loop
// staleness bound). It returns nil when healthy.
type Check func(ctx context.Context) error

// Handler provides liveness and readiness endpoints. Checks are
// registered by name at service startup; readiness requires all of
// them to pass. A service whose core loop stalls registers a staleness
// check so operators see it flip not-ready.
type Handler struct {
	log         *logger.Logger
	serviceName string
	version     string
	startTime   time.Time

	mu     sync.RWMutex
	checks map[string]Check
}

// New creates a health handler
func New(serviceName, version string) *Handler {
	return &Handler{
		log:         logger.Get().With("component", "health"),
		serviceName: serviceName,
		version:     version,
		startTime:   time.Now(),
		checks:      make(map[string]Check),
	}
}

// RegisterCheck adds a named readiness check
func (h *Handler) RegisterCheck(name string, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Status represents the overall health status
type Status struct {
	Status    string                     `json:"status"` // healthy|degraded|unhealthy
	Service   string                     `json:"service"`
	Version   string                     `json:"version"`
	Uptime    string                     `json:"uptime"`
	Timestamp string                     `json:"timestamp"`
	Checks    map[string]ComponentHealth `json:"checks,omitempty"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// HandleLiveness returns 200 OK if the process is running
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
}

// HandleReadiness reports whether the service can do useful work.
// All registered checks must pass.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks, healthy, total := h.runChecks(ctx)

	status := h.buildStatus(checks)
	statusCode := http.StatusOK
	if healthy < total {
		status.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
		h.log.Warn("Readiness check failed", "checks", checks)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(status)
}

// HandleHealth returns detailed health status. Unlike readiness, a
// partial failure reports degraded with 200 so dashboards keep data.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	checks, healthy, total := h.runChecks(ctx)

	status := h.buildStatus(checks)
	statusCode := http.StatusOK

	switch {
	case total > 0 && healthy == 0:
		status.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	case healthy < total:
		status.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(status)
}

// HandleStatus returns basic service information
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(h.buildStatus(nil))
}

func (h *Handler) runChecks(ctx context.Context) (map[string]ComponentHealth, int, int) {
	h.mu.RLock()
	checks := make(map[string]Check, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	h.mu.RUnlock()

	results := make(map[string]ComponentHealth, len(checks))
	healthy := 0

	for name, check := range checks {
		start := time.Now()
		err := check(ctx)
		elapsed := time.Since(start)

		if err != nil {
			h.log.Error("Health check failed", "check", name, "error", err, "elapsed", elapsed)
			results[name] = ComponentHealth{
				Status:       "unhealthy",
				ResponseTime: elapsed.String(),
				Error:        err.Error(),
			}
			continue
		}

		healthy++
		results[name] = ComponentHealth{
			Status:       "healthy",
			ResponseTime: elapsed.String(),
		}
	}

	return results, healthy, len(checks)
}

func (h *Handler) buildStatus(checks map[string]ComponentHealth) Status {
	return Status{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    checks,
	}
}

// StalenessCheck builds a check that fails when lastRun() is older
// than maxAge. Used to detect a stalled scheduler or consumer loop.
func StalenessCheck(lastRun func() time.Time, maxAge time.Duration) Check {
	return func(ctx context.Context) error {
		last := lastRun()
		if last.IsZero() {
			// Not run yet: healthy during startup
			return nil
		}
		if age := time.Since(last); age > maxAge {
			return stalenessError{age: age, maxAge: maxAge}
		}
		return nil
	}
}

type stalenessError struct {
	age    time.Duration
	maxAge time.Duration
}

func (e stalenessError) Error() string {
	return "loop stalled: last run " + e.age.String() + " ago (max " + e.maxAge.String() + ")"
}

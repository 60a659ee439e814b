package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scanner metrics
	ScanTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_scan_ticks_total",
			Help: "Total number of scan ticks",
		},
		[]string{"status"}, // status: ok|degraded
	)

	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_scan_duration_seconds",
			Help:    "Market scan duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	MarketEventsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_market_events_emitted_total",
			Help: "Total number of market events published",
		},
		[]string{"symbol"},
	)

	QuoteFetchErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_quote_fetch_errors_total",
			Help: "Total number of per-symbol quote fetch failures",
		},
		[]string{"symbol"},
	)

	// Dedup/idempotency metrics
	DuplicatesSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_duplicates_suppressed_total",
			Help: "Total number of duplicate events suppressed",
		},
		[]string{"stage"}, // stage: scanner|analyzer|notifier
	)

	// Analyzer metrics
	NewsAPICalls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_news_api_calls_total",
			Help: "Total number of news API calls made",
		},
	)

	NewsCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sentinel_news_cache_hits_total",
			Help: "Total number of news cache hits",
		},
	)

	EventsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_events_skipped_total",
			Help: "Total number of market events skipped by the analyzer",
		},
		[]string{"reason"}, // reason: no_news|below_sentiment|low_volume
	)

	AlertsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_alerts_published_total",
			Help: "Total number of news alerts published",
		},
		[]string{"kind"}, // kind: scored|degraded
	)

	// Notifier metrics
	DispatchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_dispatch_attempts_total",
			Help: "Total number of notification dispatch outcomes",
		},
		[]string{"channel", "status"}, // status: sent|failed
	)

	DispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_dispatch_duration_seconds",
			Help:    "Notification dispatch duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"channel"},
	)

	// Bus metrics
	BusPublishErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_bus_publish_errors_total",
			Help: "Total number of failed bus publishes",
		},
		[]string{"topic"},
	)

	// Loop liveness, one gauge per core loop
	LoopLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sentinel_loop_last_run_timestamp",
			Help: "Unix timestamp of the last core loop iteration",
		},
		[]string{"loop"},
	)
)

func init() {
	prometheus.MustRegister(ScanTicks)
	prometheus.MustRegister(ScanDuration)
	prometheus.MustRegister(MarketEventsEmitted)
	prometheus.MustRegister(QuoteFetchErrors)
	prometheus.MustRegister(DuplicatesSuppressed)
	prometheus.MustRegister(NewsAPICalls)
	prometheus.MustRegister(NewsCacheHits)
	prometheus.MustRegister(EventsSkipped)
	prometheus.MustRegister(AlertsPublished)
	prometheus.MustRegister(DispatchAttempts)
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(BusPublishErrors)
	prometheus.MustRegister(LoopLastRun)
}

// Handler returns the /metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordDispatch records a dispatch outcome
func RecordDispatch(channel, status string, duration time.Duration) {
	DispatchAttempts.WithLabelValues(channel, status).Inc()
	DispatchDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordLoopRun marks a core loop iteration for liveness tracking
func RecordLoopRun(loop string) {
	LoopLastRun.WithLabelValues(loop).SetToCurrentTime()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the agent's Prometheus collectors. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	cycles        *prometheus.CounterVec
	events        *prometheus.CounterVec
	notifications *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
	cacheHits     prometheus.Counter
	retries       *prometheus.CounterVec
	latency       *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_sentinel_cycles_total",
				Help: "Job cycles by resolution and outcome",
			},
			[]string{"resolution", "result"},
		),
		events: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_sentinel_events_detected_total",
				Help: "Events emitted by the analyzer",
			},
			[]string{"kind"},
		),
		notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_sentinel_notifications_total",
				Help: "Notification decisions: sent, suppressed or failed",
			},
			[]string{"kind", "result"},
		),
		providerCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_sentinel_provider_requests_total",
				Help: "Outbound market-data requests",
			},
			[]string{"provider", "result"},
		),
		cacheHits: f.NewCounter(
			prometheus.CounterOpts{
				Name: "signal_sentinel_candle_cache_hits_total",
				Help: "Fetches served from the candle cache",
			},
		),
		retries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signal_sentinel_retries_total",
				Help: "Retried job steps",
			},
			[]string{"op"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signal_sentinel_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordCycle(resolution, result string) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(resolution, result).Inc()
}

func (r *Recorder) RecordEvent(kind string) {
	if r == nil {
		return
	}
	r.events.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordNotification(kind, result string) {
	if r == nil {
		return
	}
	r.notifications.WithLabelValues(kind, result).Inc()
}

func (r *Recorder) RecordProviderCall(provider, result string) {
	if r == nil {
		return
	}
	r.providerCalls.WithLabelValues(provider, result).Inc()
}

func (r *Recorder) RecordCacheHit() {
	if r == nil {
		return
	}
	r.cacheHits.Inc()
}

func (r *Recorder) RecordRetry(op string) {
	if r == nil {
		return
	}
	r.retries.WithLabelValues(op).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	if r == nil {
		return
	}
	r.latency.WithLabelValues(op).Observe(seconds)
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Checkpoint Store metrics
	CheckpointSavesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dc1agent_checkpoint_saves_total",
			Help: "Total number of checkpoint save attempts by medium and status",
		},
		[]string{"medium", "status"},
	)

	CheckpointSaveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dc1agent_checkpoint_save_duration_seconds",
			Help:    "Time taken to save a checkpoint by medium",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"medium"},
	)

	CheckpointBothMediaFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dc1agent_checkpoint_both_media_failed_total",
			Help: "Total number of checkpoint saves where both local and remote media failed",
		},
	)

	// Recovery / Failover metrics
	RecoveryTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dc1agent_recovery_transitions_total",
			Help: "Total number of recovery FSM transitions by from/to state",
		},
		[]string{"from", "to"},
	)

	FailoverAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dc1agent_failover_attempts_total",
			Help: "Total number of failover attempts by outcome",
		},
		[]string{"outcome"},
	)

	FailoverDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dc1agent_failover_duration_seconds",
			Help:    "Wall-clock time of a failover attempt in seconds",
			Buckets: []float64{1, 5, 10, 20, 30, 45, 60},
		},
	)

	// Heartbeat Aggregator metrics
	HeartbeatsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dc1agent_heartbeats_received_total",
			Help: "Total number of heartbeat records ingested by peer",
		},
		[]string{"peer"},
	)

	SilentPeersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dc1agent_silent_peers",
			Help: "Number of registered peers currently silent past the threshold",
		},
	)

	// Network Monitor metrics
	PingLossRatio = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dc1agent_network_ping_loss_ratio",
			Help: "Rolling-window packet loss ratio by target",
		},
		[]string{"target"},
	)

	PingLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dc1agent_network_ping_latency_seconds",
			Help:    "Observed ping round-trip latency in seconds by target",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"target"},
	)

	NetworkOutagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dc1agent_network_outages_total",
			Help: "Total number of detected network outages",
		},
	)

	// Alert Router metrics
	AlertsRoutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dc1agent_alerts_routed_total",
			Help: "Total number of alerts routed by severity and transport",
		},
		[]string{"severity", "transport"},
	)

	AlertsRateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dc1agent_alerts_rate_limited_total",
			Help: "Total number of alerts suppressed by the rate limiter",
		},
		[]string{"severity"},
	)

	AlertsBatchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dc1agent_alerts_batched_total",
			Help: "Total number of LOW-severity alerts folded into a batch summary",
		},
	)

	// Mission Control client metrics
	MCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dc1agent_mc_requests_total",
			Help: "Total number of Mission Control API requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	MCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dc1agent_mc_request_duration_seconds",
			Help:    "Mission Control API request duration in seconds by endpoint",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	MCCircuitOpenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dc1agent_mc_circuit_open_total",
			Help: "Total number of times the Mission Control circuit breaker tripped open",
		},
		[]string{"breaker"},
	)
)

func init() {
	prometheus.MustRegister(CheckpointSavesTotal)
	prometheus.MustRegister(CheckpointSaveDuration)
	prometheus.MustRegister(CheckpointBothMediaFailedTotal)

	prometheus.MustRegister(RecoveryTransitionsTotal)
	prometheus.MustRegister(FailoverAttemptsTotal)
	prometheus.MustRegister(FailoverDuration)

	prometheus.MustRegister(HeartbeatsReceivedTotal)
	prometheus.MustRegister(SilentPeersTotal)

	prometheus.MustRegister(PingLossRatio)
	prometheus.MustRegister(PingLatencySeconds)
	prometheus.MustRegister(NetworkOutagesTotal)

	prometheus.MustRegister(AlertsRoutedTotal)
	prometheus.MustRegister(AlertsRateLimitedTotal)
	prometheus.MustRegister(AlertsBatchedTotal)

	prometheus.MustRegister(MCRequestsTotal)
	prometheus.MustRegister(MCRequestDuration)
	prometheus.MustRegister(MCCircuitOpenTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

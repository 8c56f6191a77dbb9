package netmon

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/dc1agent/pkg/alert"
	"github.com/cuemby/dc1agent/pkg/events"
	"github.com/cuemby/dc1agent/pkg/log"
	"github.com/cuemby/dc1agent/pkg/metrics"
)

// Status is the current, queryable state exposed at GET /status.
type Status struct {
	Status     string  `json:"status"` // "healthy" | "degraded"
	LossPct    float64 `json:"loss_pct"`
	LastProbe  string  `json:"last_probe_target"`
	OutageOpen bool    `json:"outage_open"`
}

// Monitor runs the probe loop against a primary/fallback target pair,
// maintains a rolling loss window, detects outages, and emits an hourly
// latency rollup — grounded on the original monitoring/network_monitor.py.
type Monitor struct {
	probe *Probe
	store *Store

	router *alert.Router
	broker *events.Broker

	primaryTarget  string
	fallbackTarget string
	interval       time.Duration
	pingTimeout    time.Duration

	rollingWindow         time.Duration
	outageConsecutive     time.Duration
	lossAlertThresholdPct float64

	mu             sync.Mutex
	samples        []PingSample
	lastSuccessAt  time.Time
	outageOpen     bool
	lastUsedTarget string
}

// NewMonitor constructs a Monitor.
func NewMonitor(store *Store, router *alert.Router, broker *events.Broker, primaryTarget, fallbackTarget string, interval, pingTimeout, rollingWindow, outageConsecutive time.Duration, lossAlertThresholdPct float64) *Monitor {
	return &Monitor{
		probe: NewProbe(pingTimeout), store: store, router: router, broker: broker,
		primaryTarget: primaryTarget, fallbackTarget: fallbackTarget,
		interval: interval, pingTimeout: pingTimeout,
		rollingWindow: rollingWindow, outageConsecutive: outageConsecutive,
		lossAlertThresholdPct: lossAlertThresholdPct,
		lastSuccessAt:         time.Now(),
	}
}

// Run drives the probe loop and, concurrently, the hourly rollup sweep,
// until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	go m.runHourlyRollup(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pingCycle(ctx)
		}
	}
}

func (m *Monitor) pingCycle(ctx context.Context) {
	sample := m.probe.Ping(ctx, m.primaryTarget, m.pingTimeout)
	target := m.primaryTarget
	if !sample.Success && m.fallbackTarget != "" {
		sample = m.probe.Ping(ctx, m.fallbackTarget, m.pingTimeout)
		target = m.fallbackTarget
	}

	m.recordSample(ctx, sample, target)
}

func (m *Monitor) recordSample(ctx context.Context, sample PingSample, target string) {
	m.mu.Lock()
	m.lastUsedTarget = target
	m.samples = append(m.samples, sample)
	m.trimSamples()

	if sample.Success {
		m.lastSuccessAt = sample.At
		metrics.PingLatencySeconds.WithLabelValues(target).Observe(sample.LatencyMS / 1000)
	}

	lossPct := m.currentLossPctLocked()
	wasOpen := m.outageOpen
	outageNow := time.Since(m.lastSuccessAt) >= m.outageConsecutive
	m.outageOpen = outageNow
	m.mu.Unlock()

	metrics.PingLossRatio.WithLabelValues(target).Set(lossPct / 100)

	if err := m.store.InsertSample(ctx, target, sample); err != nil {
		log.Logger.Warn().Err(err).Msg("failed to persist ping sample")
	}

	if outageNow && !wasOpen {
		metrics.NetworkOutagesTotal.Inc()
		m.emitOutageDetected(ctx)
	} else if !outageNow && wasOpen {
		m.emitOutageCleared(ctx)
	} else if lossPct >= m.lossAlertThresholdPct {
		m.emitLossAlert(ctx, lossPct)
	}
}

// trimSamples keeps at most 2×rollingWindow/interval samples, per
// spec.md §4.6.
func (m *Monitor) trimSamples() {
	maxLen := int(2 * m.rollingWindow / m.interval)
	if maxLen < 1 {
		maxLen = 1
	}
	if len(m.samples) > maxLen {
		m.samples = m.samples[len(m.samples)-maxLen:]
	}
}

func (m *Monitor) currentLossPctLocked() float64 {
	cutoff := time.Now().Add(-m.rollingWindow)
	total, lost := 0, 0
	for _, s := range m.samples {
		if s.At.Before(cutoff) {
			continue
		}
		total++
		if !s.Success {
			lost++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(lost) / float64(total) * 100
}

// CurrentStatus returns the monitor's current queryable state.
func (m *Monitor) CurrentStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	loss := m.currentLossPctLocked()
	status := "healthy"
	if m.outageOpen || loss >= m.lossAlertThresholdPct {
		status = "degraded"
	}
	return Status{Status: status, LossPct: loss, LastProbe: m.lastUsedTarget, OutageOpen: m.outageOpen}
}

func (m *Monitor) emitOutageDetected(ctx context.Context) {
	log.Logger.Error().Msg("network outage detected")
	if m.router != nil {
		m.router.Route(ctx, alert.Alert{Severity: alert.SeverityCritical, Title: "network outage detected", Message: "no successful probe within outage window", SourceAgent: "netmon"})
	}
	if m.broker != nil {
		m.broker.Publish(&events.Event{Type: events.EventOutageDetected})
	}
}

func (m *Monitor) emitOutageCleared(ctx context.Context) {
	log.Logger.Info().Msg("network outage cleared")
	if m.broker != nil {
		m.broker.Publish(&events.Event{Type: events.EventOutageCleared})
	}
}

func (m *Monitor) emitLossAlert(ctx context.Context, lossPct float64) {
	if m.router != nil {
		m.router.Route(ctx, alert.Alert{Severity: alert.SeverityHigh, Title: "elevated packet loss", Message: "rolling loss exceeded threshold", SourceAgent: "netmon"})
	}
}

// runHourlyRollup computes p50/p95/p99 latency buckets every hour and
// prunes samples past the retention window.
func (m *Monitor) runHourlyRollup(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.store.RollupHour(ctx, time.Now()); err != nil {
				log.Logger.Warn().Err(err).Msg("hourly latency rollup failed")
			}
			if err := m.store.PruneOld(ctx); err != nil {
				log.Logger.Warn().Err(err).Msg("network metric retention prune failed")
			}
		}
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p / 100 * float64(len(sorted)-1))
	return sorted[idx]
}

func sortedCopy(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	sort.Float64s(out)
	return out
}

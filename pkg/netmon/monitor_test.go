package netmon

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestMonitor(t *testing.T) *Monitor {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "network.db"), 30)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return NewMonitor(store, nil, nil, "127.0.0.1", "", time.Second, time.Second, 10*time.Second, 5*time.Second, 20)
}

func TestMonitor_RecordSample_UpdatesLossRatio(t *testing.T) {
	m := newTestMonitor(t)
	ctx := context.Background()

	m.recordSample(ctx, PingSample{Target: "127.0.0.1", Success: true, At: time.Now()}, "127.0.0.1")
	m.recordSample(ctx, PingSample{Target: "127.0.0.1", Success: false, At: time.Now()}, "127.0.0.1")

	status := m.CurrentStatus()
	if status.LossPct <= 0 {
		t.Fatalf("expected non-zero loss pct after a failed sample, got %v", status.LossPct)
	}
}

func TestMonitor_RecordSample_DetectsOutageAfterConsecutiveFailures(t *testing.T) {
	m := newTestMonitor(t)
	ctx := context.Background()

	m.lastSuccessAt = time.Now().Add(-1 * time.Hour)
	m.recordSample(ctx, PingSample{Target: "127.0.0.1", Success: false, At: time.Now()}, "127.0.0.1")

	status := m.CurrentStatus()
	if !status.OutageOpen {
		t.Fatal("expected outage to be detected once the last success is older than the outage window")
	}
	if status.Status != "degraded" {
		t.Fatalf("status = %q, want degraded", status.Status)
	}
}

func TestMonitor_TrimSamples_BoundsWindowLength(t *testing.T) {
	m := newTestMonitor(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		m.recordSample(ctx, PingSample{Target: "127.0.0.1", Success: true, At: time.Now()}, "127.0.0.1")
	}

	maxLen := int(2 * m.rollingWindow / m.interval)
	if len(m.samples) > maxLen {
		t.Fatalf("samples len = %d, want <= %d", len(m.samples), maxLen)
	}
}

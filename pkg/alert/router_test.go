package alert

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingTransport struct {
	name string
	mu   sync.Mutex
	sent []Alert
}

func (t *recordingTransport) Name() string { return t.name }

func (t *recordingTransport) Send(ctx context.Context, a Alert) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, a)
	return nil
}

func (t *recordingTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

func TestRouter_Route_HighGoesToDMGroupAndMC(t *testing.T) {
	dm := &recordingTransport{name: "chat_dm"}
	group := &recordingTransport{name: "chat_group"}
	mcT := &recordingTransport{name: "mc"}

	r := NewRouter(map[string]Transport{"chat_dm": dm, "chat_group": group, "mc": mcT}, 600*time.Second, 1800*time.Second)

	r.Route(context.Background(), Alert{Severity: SeverityHigh, Title: "gpu offline", SourceAgent: "netmon"})

	if dm.count() != 1 || group.count() != 1 || mcT.count() != 1 {
		t.Fatalf("expected one delivery per transport, got dm=%d group=%d mc=%d", dm.count(), group.count(), mcT.count())
	}
}

func TestRouter_Route_RateLimitSuppressesRepeat(t *testing.T) {
	mcT := &recordingTransport{name: "mc"}
	r := NewRouter(map[string]Transport{"mc": mcT}, 1*time.Hour, 1800*time.Second)

	a := Alert{Severity: SeverityMedium, Title: "elevated latency", SourceAgent: "netmon"}
	r.Route(context.Background(), a)
	r.Route(context.Background(), a)

	if mcT.count() != 1 {
		t.Fatalf("expected rate limit to suppress the second alert, got %d deliveries", mcT.count())
	}
}

func TestRouter_Route_CriticalBypassesRateLimit(t *testing.T) {
	mcT := &recordingTransport{name: "mc"}
	r := NewRouter(map[string]Transport{"mc": mcT}, 1*time.Hour, 1800*time.Second)

	a := Alert{Severity: SeverityCritical, Title: "network outage", SourceAgent: "netmon"}
	r.Route(context.Background(), a)
	r.Route(context.Background(), a)

	if mcT.count() != 2 {
		t.Fatalf("expected CRITICAL to bypass rate limit, got %d deliveries", mcT.count())
	}
}

func TestRouter_Route_LowSeverityBatchesAndFlushes(t *testing.T) {
	mcT := &recordingTransport{name: "mc"}
	r := NewRouter(map[string]Transport{"mc": mcT}, 600*time.Second, 10*time.Millisecond)

	r.Route(context.Background(), Alert{Severity: SeverityLow, Title: "minor blip", SourceAgent: "netmon"})

	if mcT.count() != 0 {
		t.Fatal("LOW severity must not dispatch immediately")
	}

	time.Sleep(30 * time.Millisecond)

	if mcT.count() != 1 {
		t.Fatalf("expected exactly one batched summary delivery, got %d", mcT.count())
	}
}

package recovery

import (
	"context"
	"testing"
	"time"
)

func TestHandleInterruption_ReconnectSucceedsOnSecondAttempt(t *testing.T) {
	m := NewMachine(nil)
	attempts := 0

	reconnect := func(ctx context.Context, rc Context) (bool, error) {
		attempts++
		return attempts == 2, nil
	}
	failover := func(ctx context.Context, rc Context) (bool, string) {
		t.Fatal("failover should not run when reconnect succeeds")
		return false, ""
	}

	origSchedule := ReconnectSchedule
	ReconnectSchedule = []time.Duration{time.Millisecond, time.Millisecond}
	defer func() { ReconnectSchedule = origSchedule }()

	rc := Context{JobID: "job-1", State: StateRunning}
	rc = m.HandleInterruption(context.Background(), rc, reconnect, failover, nil)

	if rc.State != StateResolved {
		t.Fatalf("state = %v, want %v", rc.State, StateResolved)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestHandleInterruption_FailoverSucceedsAfterReconnectExhausted(t *testing.T) {
	m := NewMachine(nil)

	reconnect := func(ctx context.Context, rc Context) (bool, error) { return false, nil }
	failoverCalled := false
	failover := func(ctx context.Context, rc Context) (bool, string) {
		failoverCalled = true
		return true, ""
	}

	origSchedule := ReconnectSchedule
	ReconnectSchedule = []time.Duration{time.Millisecond}
	defer func() { ReconnectSchedule = origSchedule }()

	rc := Context{JobID: "job-1", State: StateRunning}
	rc = m.HandleInterruption(context.Background(), rc, reconnect, failover, nil)

	if !failoverCalled {
		t.Fatal("expected failover to run")
	}
	if rc.State != StateResolved {
		t.Fatalf("state = %v, want %v", rc.State, StateResolved)
	}
}

func TestHandleInterruption_OperatorResolvesDuringEscalation(t *testing.T) {
	m := NewMachine(nil)

	reconnect := func(ctx context.Context, rc Context) (bool, error) { return false, nil }
	failover := func(ctx context.Context, rc Context) (bool, string) { return false, "backup offline" }

	origSchedule := ReconnectSchedule
	ReconnectSchedule = []time.Duration{time.Millisecond}
	defer func() { ReconnectSchedule = origSchedule }()

	resolved := make(chan struct{})
	go func() {
		time.Sleep(5 * time.Millisecond)
		close(resolved)
	}()

	rc := Context{JobID: "job-1", State: StateRunning}
	rc = m.HandleInterruption(context.Background(), rc, reconnect, failover, resolved)

	if rc.State != StateResolved {
		t.Fatalf("state = %v, want %v", rc.State, StateResolved)
	}
}

package recovery

import (
	"context"
	"time"

	"github.com/cuemby/dc1agent/pkg/log"
)

// ReconnectProbe attempts to bring the interrupted job back onto its
// primary GPU. It returns true if the job is running again.
type ReconnectProbe func(ctx context.Context, rc Context) (bool, error)

// FailoverRunner executes the bounded failover sequence for rc and
// reports whether it completed successfully.
type FailoverRunner func(ctx context.Context, rc Context) (bool, string)

// HandleInterruption drives one job's full recovery sequence: reconnect
// attempts on the fixed backoff schedule, escalation to failover on
// exhaustion, and an escalation poll loop if failover itself fails —
// grounded on the original RecoveryOrchestrator.handle_interruption.
func (m *Machine) HandleInterruption(ctx context.Context, rc Context, reconnect ReconnectProbe, failover FailoverRunner, operatorResolved <-chan struct{}) Context {
	rc = m.Transition(ctx, rc, Event{Kind: EventInterruptionObserved})
	// INTERRUPTION_DETECTED moves to RECONNECTING on the next event it sees.
	rc = m.Transition(ctx, rc, Event{Kind: EventInterruptionObserved, Reason: "starting reconnect attempts"})

	for attempt := 0; attempt < len(ReconnectSchedule); attempt++ {
		select {
		case <-ctx.Done():
			return rc
		case <-time.After(ReconnectSchedule[attempt]):
		}

		rc.ReconnectAttempt = attempt + 1
		ok, err := reconnect(ctx, rc)
		if err != nil {
			log.WithJobID(rc.JobID).Warn().Err(err).Int("attempt", attempt+1).Msg("reconnect attempt errored")
		}
		if ok {
			return m.Transition(ctx, rc, Event{Kind: EventReconnectSucceeded})
		}
	}

	rc = m.Transition(ctx, rc, Event{Kind: EventReconnectExhausted})

	ok, reason := failover(ctx, rc)
	if ok {
		return m.Transition(ctx, rc, Event{Kind: EventFailoverSucceeded})
	}
	rc.FailureReason = reason
	rc = m.Transition(ctx, rc, Event{Kind: EventFailoverFailed, Reason: reason})

	return m.waitForEscalationResolution(ctx, rc, operatorResolved)
}

// waitForEscalationResolution polls every EscalationPollInterval while
// in ESCALATING, until either an operator signals resolution on
// operatorResolved or EscalationTimeout elapses.
func (m *Machine) waitForEscalationResolution(ctx context.Context, rc Context, operatorResolved <-chan struct{}) Context {
	deadline := time.Now().Add(EscalationTimeout)
	ticker := time.NewTicker(EscalationPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return rc
		case <-operatorResolved:
			return m.Transition(ctx, rc, Event{Kind: EventOperatorResolved})
		case <-ticker.C:
			if time.Now().After(deadline) {
				return m.Transition(ctx, rc, Event{Kind: EventEscalationTimedOut})
			}
		}
	}
}

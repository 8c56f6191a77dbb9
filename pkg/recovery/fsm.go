// Package recovery implements the Recovery State Machine: the tagged
// state/event dispatch that decides, after a GPU interruption is
// detected, whether the job reconnects in place or escalates to
// failover.
package recovery

import (
	"context"
	"time"

	"github.com/cuemby/dc1agent/pkg/events"
	"github.com/cuemby/dc1agent/pkg/log"
	"github.com/cuemby/dc1agent/pkg/metrics"
)

// State is one of the Recovery FSM's named states.
type State string

const (
	StateRunning                State = "RUNNING"
	StateInterruptionDetected   State = "INTERRUPTION_DETECTED"
	StateReconnecting           State = "RECONNECTING"
	StateFailingOver            State = "FAILING_OVER"
	StateEscalating             State = "ESCALATING"
	StateResolved               State = "RESOLVED"
	StateFailed                 State = "FAILED"
)

// EventKind tags the variant of Event being delivered to Transition,
// the Go equivalent of the original's dynamic dispatch over event
// objects — adapted from the teacher's Command{Op,Data} switch.
type EventKind string

const (
	EventInterruptionObserved EventKind = "interruption_observed"
	EventReconnectSucceeded   EventKind = "reconnect_succeeded"
	EventReconnectExhausted   EventKind = "reconnect_exhausted"
	EventFailoverSucceeded    EventKind = "failover_succeeded"
	EventFailoverFailed       EventKind = "failover_failed"
	EventEscalationTimedOut   EventKind = "escalation_timed_out"
	EventOperatorResolved     EventKind = "operator_resolved"
)

// Event is one tagged input to the FSM.
type Event struct {
	Kind   EventKind
	Reason string
}

// Context carries the per-job state the FSM needs across transitions:
// which GPU failed, its static backup, and how many reconnect attempts
// have been made so far.
type Context struct {
	JobID            string
	PrimaryGPU       string
	BackupGPU        string
	ReconnectAttempt int
	State            State
	EnteredAt        time.Time
	FailureReason    string
}

// ReconnectSchedule is the fixed backoff between reconnect attempts.
var ReconnectSchedule = []time.Duration{
	1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
}

// EscalationPollInterval and EscalationTimeout bound how long the FSM
// waits in ESCALATING before giving up and marking the job FAILED.
const (
	EscalationPollInterval = 30 * time.Second
	EscalationTimeout      = 600 * time.Second
)

// Machine runs one job's Recovery FSM instance, emitting an audit event
// on every transition.
type Machine struct {
	broker *events.Broker
}

// NewMachine constructs a Machine that reports transitions to broker.
func NewMachine(broker *events.Broker) *Machine {
	return &Machine{broker: broker}
}

// Transition applies event to ctx, returning the updated context. The
// FSM never panics or returns an error for an event that doesn't apply
// to the current state — such events are no-ops, logged at debug, since
// spec.md treats out-of-order delivery as possible under concurrent
// detection paths.
func (m *Machine) Transition(ctx context.Context, rc Context, ev Event) Context {
	from := rc.State
	next := m.next(rc, ev)

	if next != from {
		rc.State = next
		rc.EnteredAt = time.Now()
		metrics.RecoveryTransitionsTotal.WithLabelValues(string(from), string(next)).Inc()
		if m.broker != nil {
			m.broker.Publish(&events.Event{
				Type:    events.EventRecoveryTransition,
				Message: string(from) + "->" + string(next),
				Metadata: map[string]string{
					"job_id": rc.JobID,
					"reason": ev.Reason,
				},
			})
		}
		log.WithJobID(rc.JobID).Info().
			Str("from", string(from)).
			Str("to", string(next)).
			Str("event", string(ev.Kind)).
			Msg("recovery fsm transition")
	} else {
		log.WithJobID(rc.JobID).Debug().
			Str("state", string(from)).
			Str("event", string(ev.Kind)).
			Msg("recovery fsm event does not apply to current state")
	}

	return rc
}

func (m *Machine) next(rc Context, ev Event) State {
	switch rc.State {
	case StateRunning:
		if ev.Kind == EventInterruptionObserved {
			return StateInterruptionDetected
		}
	case StateInterruptionDetected:
		return StateReconnecting
	case StateReconnecting:
		switch ev.Kind {
		case EventReconnectSucceeded:
			return StateResolved
		case EventReconnectExhausted:
			return StateFailingOver
		}
	case StateFailingOver:
		switch ev.Kind {
		case EventFailoverSucceeded:
			return StateResolved
		case EventFailoverFailed:
			return StateEscalating
		}
	case StateEscalating:
		switch ev.Kind {
		case EventOperatorResolved:
			return StateResolved
		case EventEscalationTimedOut:
			return StateFailed
		}
	}
	return rc.State
}

// ShouldExhaustReconnect reports whether attempt has consumed the full
// reconnect schedule.
func ShouldExhaustReconnect(attempt int) bool {
	return attempt >= len(ReconnectSchedule)
}

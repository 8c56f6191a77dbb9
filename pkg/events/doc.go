/*
Package events provides an in-memory audit event broker for dc1agent's
internal components.

The broker broadcasts Checkpoint, Recovery, Failover, Heartbeat, and
Network events to every subscriber over buffered channels; a slow or
absent subscriber never blocks a publisher.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	ch := broker.Subscribe()
	defer broker.Unsubscribe(ch)

	broker.Publish(&events.Event{Type: events.EventFailoverStarted, Message: "job-42"})
*/
package events

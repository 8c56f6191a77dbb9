// Package alert implements the Alert Router: severity-routed dispatch
// of alerts raised by the Network Monitor, Heartbeat Aggregator, and
// Recovery/Failover components to chat and Mission Control transports,
// with rate limiting and low-severity batching.
package alert

import "time"

// Severity is one of the four alert severities, ordered LOW..CRITICAL.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is one routable alert.
type Alert struct {
	ID          string
	Severity    Severity
	Title       string
	Message     string
	SourceAgent string
	CreatedAt   time.Time
}

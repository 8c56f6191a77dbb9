/*
Package metrics provides Prometheus metrics collection and exposition
for dc1agent.

All metrics are registered once at package init with the default
Prometheus registry (prometheus.MustRegister), and Handler() returns
promhttp.Handler() for a chi mux to mount at /metrics.

# Metric families

	dc1agent_checkpoint_saves_total{medium,status}
	dc1agent_checkpoint_save_duration_seconds{medium}
	dc1agent_checkpoint_both_media_failed_total
	dc1agent_recovery_transitions_total{from,to}
	dc1agent_failover_attempts_total{outcome}
	dc1agent_failover_duration_seconds
	dc1agent_heartbeats_received_total{peer}
	dc1agent_silent_peers
	dc1agent_network_ping_loss_ratio{target}
	dc1agent_network_ping_latency_seconds{target}
	dc1agent_network_outages_total
	dc1agent_alerts_routed_total{severity,transport}
	dc1agent_alerts_rate_limited_total{severity}
	dc1agent_alerts_batched_total
	dc1agent_mc_requests_total{endpoint,status}
	dc1agent_mc_request_duration_seconds{endpoint}
	dc1agent_mc_circuit_open_total{breaker}

# Usage

	timer := metrics.NewTimer()
	err := doSomething()
	timer.ObserveDurationVec(metrics.CheckpointSaveDuration, "local")
*/
package metrics

/*
Package metrics provides Prometheus metrics and health reporting for burrow.

All metrics are package-level vectors registered with the default registry
at init, and exposed by Handler for scraping.

# Metrics

Controller:
  - burrow_objects_total{kind}: objects in the cluster state, set by Collector
  - burrow_api_calls_total{handler,result}: api calls by outcome (info, warn, error)
  - burrow_api_call_duration_seconds{handler}
  - burrow_lock_wait_seconds: time spent acquiring cluster state locks
  - burrow_rollbacks_total
  - burrow_purged_objects_total{kind}
  - burrow_reconnect_attempts_total{outcome}

Satellite:
  - burrow_reconciliations_total{kind,outcome}
  - burrow_reconcile_changes_total
  - burrow_divergences_total{kind}: snapshots rejected as divergent
  - burrow_reconcile_duration_seconds

Both:
  - burrow_component_healthy{component}
  - burrow_peers_connected
  - burrow_messages_total{direction,type}

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.APICallDuration, "CreateNode")

# Health

Health is the component registry of the process. The controller marks the
store unhealthy when a commit fails and healthy on the next successful
one; the satellite's peer server reports the transport, and its controller
connection reports the controller component. HealthHandler (/health) fails
only if a critical component is unhealthy and shows "degraded" for the
others, ReadyHandler (/ready) requires every critical component to have
reported healthy, LivenessHandler (/live) always succeeds. The state is
exported as burrow_component_healthy{component}.
*/
package metrics

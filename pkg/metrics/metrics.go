package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster state metrics
	ObjectsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_objects_total",
			Help: "Number of objects in the controller's cluster state by kind",
		},
		[]string{"kind"},
	)

	PeersConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_peers_connected",
			Help: "Number of connected peers",
		},
	)

	// API call metrics
	APICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_api_calls_total",
			Help: "Total number of controller api calls by handler and result",
		},
		[]string{"handler", "result"},
	)

	APICallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_api_call_duration_seconds",
			Help:    "Controller api call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler"},
	)

	LockWaitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_lock_wait_seconds",
			Help:    "Time spent acquiring cluster state locks",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)

	RollbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_rollbacks_total",
			Help: "Total number of rolled back controller transactions",
		},
	)

	PurgedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_purged_objects_total",
			Help: "Total number of soft-deleted objects physically removed by kind",
		},
		[]string{"kind"},
	)

	MaintenanceRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_maintenance_runs_total",
			Help: "Total number of controller maintenance runs by task and outcome",
		},
		[]string{"task", "outcome"},
	)

	MaintenanceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_maintenance_duration_seconds",
			Help:    "Time taken by one controller maintenance run",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task"},
	)

	// Satellite metrics
	ReconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_reconciliations_total",
			Help: "Total number of satellite reconciliations by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	ReconcileChangesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_reconcile_changes_total",
			Help: "Total number of objects created, updated or tombstoned by reconciliation",
		},
	)

	DivergencesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_divergences_total",
			Help: "Total number of rejected snapshots by divergence kind",
		},
		[]string{"kind"},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_reconcile_duration_seconds",
			Help:    "Time taken to apply one snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Transport metrics
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_messages_total",
			Help: "Total number of peer messages by direction and type",
		},
		[]string{"direction", "type"},
	)

	ReconnectAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_reconnect_attempts_total",
			Help: "Total number of satellite reconnect attempts by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ObjectsTotal)
	prometheus.MustRegister(PeersConnected)
	prometheus.MustRegister(APICallsTotal)
	prometheus.MustRegister(APICallDuration)
	prometheus.MustRegister(LockWaitDuration)
	prometheus.MustRegister(RollbacksTotal)
	prometheus.MustRegister(PurgedTotal)
	prometheus.MustRegister(MaintenanceRunsTotal)
	prometheus.MustRegister(MaintenanceDuration)
	prometheus.MustRegister(ReconciliationsTotal)
	prometheus.MustRegister(ReconcileChangesTotal)
	prometheus.MustRegister(DivergencesTotal)
	prometheus.MustRegister(ReconcileDuration)
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(ReconnectAttemptsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

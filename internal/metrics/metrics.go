// Package metrics holds the Prometheus counters exposed on /metrics,
// backing the testable properties of spec.md §8.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	WakeSignals = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_worker_wake_signals_total",
		Help: "Wake tokens accepted onto the wake channel.",
	})

	WakeDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_worker_wake_drops_total",
		Help: "Wake tokens dropped because the wake channel was full.",
	})

	BatchesFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_worker_batches_fetched_total",
		Help: "fetch_due calls issued by the worker loop.",
	})

	RowsFetched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_worker_rows_fetched_total",
		Help: "Rows returned across all fetch_due calls.",
	})

	Deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_worker_deliveries_total",
		Help: "Delivery attempts by transport and outcome.",
	}, []string{"transport", "outcome"})

	RowsTerminal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_worker_rows_terminal_total",
		Help: "Rows that reached is_processed=true, by reason.",
	}, []string{"reason"})

	DBCommitRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_worker_db_commit_retries_total",
		Help: "In-process retries of record_success/record_failure commits.",
	})

	ListenerReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_worker_listener_reconnects_total",
		Help: "Times the LISTEN session was re-established after a disconnect.",
	})

	OAuth2Refreshes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_worker_oauth2_refreshes_total",
		Help: "FCM OAuth2 access token refreshes performed.",
	})
)

// NewRegistry builds the process-wide Prometheus registry, constructed once
// at startup with the metrics collectors above registered on it, and handed
// to the health server's /metrics handler.
func NewRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		WakeSignals,
		WakeDrops,
		BatchesFetched,
		RowsFetched,
		Deliveries,
		RowsTerminal,
		DBCommitRetries,
		ListenerReconnects,
		OAuth2Refreshes,
	)
	return r
}

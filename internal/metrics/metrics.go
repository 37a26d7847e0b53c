// Package metrics implements Prometheus metrics for the logger runtime,
// grounded on the teacher's internal/metrics package (same promauto
// vector shapes, generalized from packet-capture counters to
// reader/writer/listener counters for spec §4.3/§4.4).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsReadTotal counts records pulled off a reader.
	RecordsReadTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logger_records_read_total",
			Help: "Total number of records read by a logger's readers",
		},
		[]string{"logger", "reader"},
	)

	// RecordsWrittenTotal counts records accepted by a writer.
	RecordsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logger_records_written_total",
			Help: "Total number of records written by a logger's writers",
		},
		[]string{"logger", "writer"},
	)

	// ReaderFailuresTotal counts reader restarts after an error.
	ReaderFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logger_reader_failures_total",
			Help: "Total number of reader restarts after an error",
		},
		[]string{"logger", "reader"},
	)

	// WriterDegradedTotal counts writer degrade transitions.
	WriterDegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logger_writer_degraded_total",
			Help: "Total number of times a writer transitioned to degraded",
		},
		[]string{"logger", "writer"},
	)

	// ListenerState tracks a listener's current state as a gauge
	// (0=stopped, 1=starting, 2=running, 3=failed).
	ListenerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "logger_listener_state",
			Help: "Current state of a logger's listener (0=stopped,1=starting,2=running,3=failed)",
		},
		[]string{"logger"},
	)

	// ReconcileCyclesTotal counts manager reconciliation passes.
	ReconcileCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logger_manager_reconcile_cycles_total",
			Help: "Total number of reconciliation cycles run by the logger manager",
		},
	)

	// ReconcileActionsTotal counts start/stop/restart actions the manager
	// took during reconciliation, by action kind.
	ReconcileActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logger_manager_reconcile_actions_total",
			Help: "Total number of start/stop/restart actions taken during reconciliation",
		},
		[]string{"logger", "action"},
	)
)

// Listener state gauge values, mirroring internal/listener.State as
// numbers since Prometheus gauges can't hold strings.
const (
	ListenerStateStopped  = 0
	ListenerStateStarting = 1
	ListenerStateRunning  = 2
	ListenerStateFailed   = 3
)

package processing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabridge_worker_tasks_succeeded_total",
		Help: "Deliveries processed to completion.",
	})
	tasksRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabridge_worker_tasks_retried_total",
		Help: "Deliveries nacked back to the queue after a transient failure.",
	})
	tasksExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabridge_worker_tasks_exhausted_total",
		Help: "Deliveries dropped after exhausting the attempt budget.",
	})
	tasksDroppedTerminal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabridge_worker_tasks_dropped_terminal_total",
		Help: "Redelivered messages dropped because the ledger already holds a terminal status.",
	})
	tasksDroppedInFlight = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabridge_worker_tasks_dropped_inflight_total",
		Help: "Duplicate deliveries dropped because another worker holds a live claim.",
	})
	conversationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wabridge_worker_conversation_duration_seconds",
		Help:    "Wall time of one conversation turn, backend call included.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
	reconcilerRequeued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabridge_worker_reconciler_requeued_total",
		Help: "Stuck ledger entries reset to PENDING and re-enqueued by the reconciler.",
	})
	reconcilerPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabridge_worker_reconciler_purged_total",
		Help: "Ledger entries deleted after the retention window.",
	})
)

package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	webhooksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabridge_gateway_webhooks_received_total",
		Help: "Webhook POST bodies received, before any filtering.",
	})
	messagesAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabridge_gateway_messages_accepted_total",
		Help: "Messages recorded in the ledger and queued for processing.",
	})
	messagesDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabridge_gateway_messages_duplicate_total",
		Help: "Messages dropped because their delivery ID was already seen.",
	})
	messagesStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabridge_gateway_messages_stale_total",
		Help: "Messages dropped because they were sent too long ago.",
	})
	messagesIgnored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabridge_gateway_messages_ignored_total",
		Help: "Webhook bodies ignored: status receipts, other numbers, unparseable payloads.",
	})
	parseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabridge_gateway_parse_failures_total",
		Help: "Webhook bodies that could not be parsed.",
	})
	publishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wabridge_gateway_publish_failures_total",
		Help: "Queue publishes that failed after the ledger write; the reconciler recovers these.",
	})
)

// Package metrics holds the prometheus collectors shared by the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SettlementRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cashier_settlement_requests_total",
		Help: "Settlement API operations by operation and result.",
	}, []string{"operation", "result"})

	SettlementSignIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cashier_settlement_signins_total",
		Help: "Agent sign-in calls made to the settlement API.",
	})

	SettlementRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cashier_settlement_retries_total",
		Help: "Operations retried after a forced session refresh.",
	}, []string{"operation"})

	SettlementLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cashier_settlement_request_seconds",
		Help:    "Latency of settlement API HTTP calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cashier_ledger_operations_total",
		Help: "Money-moving ledger operations by kind and result.",
	}, []string{"operation", "result"})

	ConversationInputs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cashier_conversation_inputs_total",
		Help: "Inputs dispatched by the conversation machine, by step or action.",
	}, []string{"handler"})
)

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

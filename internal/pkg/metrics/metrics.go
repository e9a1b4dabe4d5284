// internal/pkg/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_operations_total",
		Help: "Ledger operations by name and outcome (ok or error code).",
	}, []string{"op", "outcome"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_operation_duration_seconds",
		Help:    "Ledger operation latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	custodyBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_custody_balance",
		Help: "Pooled balance currently held by the ledger, in base units.",
	})

	relayPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_audit_records_published_total",
		Help: "Audit records delivered to event sinks.",
	})

	indexerApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "indexer_records_applied_total",
		Help: "Audit records applied to the order view projection.",
	}, []string{"kind"})
)

// ObserveOperation 记录一次账本调用。outcome 为 "ok" 或错误码。
func ObserveOperation(op, outcome string, started time.Time) {
	operationsTotal.WithLabelValues(op, outcome).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func SetCustodyBalance(v uint64) {
	custodyBalance.Set(float64(v))
}

func AddPublished(n int) {
	relayPublished.Add(float64(n))
}

func IncApplied(kind string) {
	indexerApplied.WithLabelValues(kind).Inc()
}

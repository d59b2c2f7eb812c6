package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ledger node.
type Metrics struct {
	// Write requests received by type
	TxnsReceived *prometheus.CounterVec

	// Rejections by code and stage ("pre_order", "post_commit")
	TxnsRejected *prometheus.CounterVec

	// Committed writes by type
	TxnsCommitted *prometheus.CounterVec

	// Read queries by type
	Queries *prometheus.CounterVec

	// Time from ordered delivery to reply
	ExecuteLatency prometheus.Histogram

	// Current number of log entries
	LogSize prometheus.Gauge
}

// New creates a new Metrics instance with all ledger metrics registered.
func New() *Metrics {
	return &Metrics{
		TxnsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idledger_txns_received_total",
			Help: "Total write requests received by transaction type",
		}, []string{"type"}),

		TxnsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idledger_txns_rejected_total",
			Help: "Total rejected writes by error code and pipeline stage",
		}, []string{"code", "stage"}),

		TxnsCommitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idledger_txns_committed_total",
			Help: "Total committed writes by transaction type",
		}, []string{"type"}),

		Queries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idledger_queries_total",
			Help: "Total read queries by type",
		}, []string{"type"}),

		ExecuteLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "idledger_execute_duration_seconds",
			Help:    "Duration of executing an ordered transaction",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		LogSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "idledger_log_size",
			Help: "Number of entries in the transaction log",
		}),
	}
}

func (m *Metrics) IncrementReceived(txnType string) {
	if m != nil {
		m.TxnsReceived.WithLabelValues(txnType).Inc()
	}
}

func (m *Metrics) IncrementRejected(code, stage string) {
	if m != nil {
		m.TxnsRejected.WithLabelValues(code, stage).Inc()
	}
}

func (m *Metrics) IncrementCommitted(txnType string) {
	if m != nil {
		m.TxnsCommitted.WithLabelValues(txnType).Inc()
	}
}

func (m *Metrics) IncrementQuery(txnType string) {
	if m != nil {
		m.Queries.WithLabelValues(txnType).Inc()
	}
}

// ObserveExecuteLatency records the duration of one executed step.
func (m *Metrics) ObserveExecuteLatency(d time.Duration) {
	if m != nil {
		m.ExecuteLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) SetLogSize(n int64) {
	if m != nil {
		m.LogSize.Set(float64(n))
	}
}

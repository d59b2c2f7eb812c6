package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for an agent.
type Metrics struct {
	// Inbound messages by type
	MessagesReceived *prometheus.CounterVec

	// Inbound messages answered with an error envelope, by code
	MessagesRejected *prometheus.CounterVec

	// Outbound messages by type and outcome ("sent", "failed")
	MessagesSent *prometheus.CounterVec

	// Link status changes by new status
	LinkTransitions *prometheus.CounterVec

	// Ledger reads by outcome ("ok", "timeout", "error")
	LedgerPolls *prometheus.CounterVec
}

// New creates a new Metrics instance with all agent metrics registered.
func New() *Metrics {
	return &Metrics{
		MessagesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idledger_agent_messages_received_total",
			Help: "Total inbound agent messages by type",
		}, []string{"type"}),

		MessagesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idledger_agent_messages_rejected_total",
			Help: "Total inbound agent messages rejected by error code",
		}, []string{"code"}),

		MessagesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idledger_agent_messages_sent_total",
			Help: "Total outbound agent messages by type and outcome",
		}, []string{"type", "outcome"}),

		LinkTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idledger_agent_link_transitions_total",
			Help: "Total link status transitions by new status",
		}, []string{"status"}),

		LedgerPolls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idledger_agent_ledger_polls_total",
			Help: "Total bounded ledger reads by outcome",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncrementReceived(msgType string) {
	if m != nil {
		m.MessagesReceived.WithLabelValues(msgType).Inc()
	}
}

func (m *Metrics) IncrementRejected(code string) {
	if m != nil {
		m.MessagesRejected.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) IncrementSent(msgType, outcome string) {
	if m != nil {
		m.MessagesSent.WithLabelValues(msgType, outcome).Inc()
	}
}

func (m *Metrics) IncrementTransition(status string) {
	if m != nil {
		m.LinkTransitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncrementPoll(outcome string) {
	if m != nil {
		m.LedgerPolls.WithLabelValues(outcome).Inc()
	}
}

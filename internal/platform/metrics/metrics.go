package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP holds the request metrics shared by the node API and the agent inbound endpoint.
type HTTP struct {
	RequestLatency *prometheus.HistogramVec
}

// NewHTTP creates and registers request metrics under the component prefix ("node", "agent").
func NewHTTP(component string) *HTTP {
	return &HTTP{
		RequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idledger_" + component + "_http_request_duration_seconds",
			Help:    "HTTP request duration by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// ObserveRequestLatency records one request.
func (m *HTTP) ObserveRequestLatency(route string, d time.Duration) {
	if m != nil {
		m.RequestLatency.WithLabelValues(route).Observe(d.Seconds())
	}
}

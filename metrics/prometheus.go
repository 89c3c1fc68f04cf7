package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus is a Collector backed by real Prometheus collectors. Construct
// with NewPrometheus and register the values returned by Collectors() with a
// prometheus.Registerer.
type Prometheus struct {
	reconnects   prometheus.Counter
	rpcDuration  *prometheus.HistogramVec
	subscriptions *prometheus.GaugeVec
	refreshFails prometheus.Counter
}

// NewPrometheus constructs a Prometheus collector with unregistered
// metrics; call Collectors() to register them with any registerer.
func NewPrometheus() *Prometheus {
	return &Prometheus{
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "centrifuge_reconnects_total",
			Help: "Total number of reconnection attempts initiated by the client.",
		}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "centrifuge_rpc_duration_seconds",
			Help:    "Duration of RPC/command round trips, labeled by outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		subscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "centrifuge_subscriptions",
			Help: "Number of subscriptions currently in each state.",
		}, []string{"state"}),
		refreshFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "centrifuge_refresh_failures_total",
			Help: "Total number of failed credential refresh attempts.",
		}),
	}
}

// Collectors returns every prometheus.Collector so callers can register
// them with their own registry (prometheus.MustRegister or similar).
func (p *Prometheus) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.reconnects, p.rpcDuration, p.subscriptions, p.refreshFails}
}

func (p *Prometheus) ReconnectAttempted() {
	p.reconnects.Inc()
}

func (p *Prometheus) RPCCompleted(d time.Duration, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "error"
	}
	p.rpcDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (p *Prometheus) SubscriptionStateChanged(state string, delta int) {
	p.subscriptions.WithLabelValues(state).Add(float64(delta))
}

func (p *Prometheus) RefreshFailed() {
	p.refreshFails.Inc()
}

package arbitrage

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the Prometheus collectors updated by the Arbitrager. A nil
// *Metrics records nothing.
type Metrics struct {
	cycles          *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	ordersSent      *prometheus.CounterVec
	cancels         *prometheus.CounterVec
	refreshFailures *prometheus.CounterVec
	netExposure     prometheus.Gauge
	lastProfit      prometheus.Gauge
	pollAttempts    prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossarb_cycles_total",
				Help: "Trading cycles by outcome.",
			},
			[]string{"outcome"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossarb_gate_rejections_total",
				Help: "Opportunities rejected, by gate.",
			},
			[]string{"gate"},
		),
		ordersSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossarb_orders_sent_total",
				Help: "Orders sent, by broker and side.",
			},
			[]string{"broker", "side"},
		),
		cancels: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossarb_cancels_total",
				Help: "Cancel requests for unfilled legs, by broker.",
			},
			[]string{"broker"},
		),
		refreshFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crossarb_refresh_failures_total",
				Help: "Failed order status refreshes, by broker.",
			},
			[]string{"broker"},
		),
		netExposure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossarb_net_exposure",
			Help: "Net position across brokers seen by the last cycle.",
		}),
		lastProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossarb_last_realized_profit",
			Help: "Realized profit of the last fully filled cycle.",
		}),
		pollAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crossarb_poll_attempts",
			Help:    "Status polls per supervised cycle.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		}),
	}
	reg.MustRegister(
		m.cycles, m.rejections, m.ordersSent, m.cancels,
		m.refreshFailures, m.netExposure, m.lastProfit, m.pollAttempts,
	)
	return m
}

func (m *Metrics) cycle(outcome string) {
	if m != nil {
		m.cycles.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) rejected(g Gate) {
	if m != nil {
		m.rejections.WithLabelValues(string(g)).Inc()
	}
}

func (m *Metrics) sent(broker, side string) {
	if m != nil {
		m.ordersSent.WithLabelValues(broker, side).Inc()
	}
}

func (m *Metrics) canceled(broker string) {
	if m != nil {
		m.cancels.WithLabelValues(broker).Inc()
	}
}

func (m *Metrics) refreshFailed(broker string) {
	if m != nil {
		m.refreshFailures.WithLabelValues(broker).Inc()
	}
}

func (m *Metrics) exposure(v float64) {
	if m != nil {
		m.netExposure.Set(v)
	}
}

func (m *Metrics) supervised(attempts int, profit *float64) {
	if m == nil {
		return
	}
	m.pollAttempts.Observe(float64(attempts))
	if profit != nil {
		m.lastProfit.Set(*profit)
	}
}

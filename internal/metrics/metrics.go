// Package metrics holds the Prometheus collectors for one engine. Each
// engine owns its own registry so parallel runs never share counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "backtest"

type Metrics struct {
	Registry *prometheus.Registry

	Events          *prometheus.CounterVec
	OrdersSubmitted *prometheus.CounterVec
	OrdersRejected  *prometheus.CounterVec
	Fills           *prometheus.CounterVec
	FillVolume      *prometheus.CounterVec
	Commission      prometheus.Counter
	Slippage        prometheus.Counter
	TickLatency     prometheus.Histogram
	RestingOrders   *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events published on the bus by kind.",
		}, []string{"kind"}),
		OrdersSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Orders admitted by risk, by strategy.",
		}, []string{"strategy"}),
		OrdersRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_rejected_total",
			Help:      "Orders rejected by risk, by rejection code.",
		}, []string{"code"}),
		Fills: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fills_total",
			Help:      "Fills by strategy and liquidity role.",
		}, []string{"strategy", "role"}),
		FillVolume: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fill_volume_total",
			Help:      "Filled quantity by instrument.",
		}, []string{"instrument"}),
		Commission: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_total",
			Help:      "Commission charged on strategy fills.",
		}),
		Slippage: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slippage_total",
			Help:      "Slippage charged on strategy fills.",
		}),
		TickLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_processing_seconds",
			Help:      "Wall time spent processing one tick.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		RestingOrders: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resting_orders",
			Help:      "Orders resting in each book.",
		}, []string{"instrument"}),
	}
}

// CounterFunc registers a counter whose value is read from fn at scrape
// time, used for counts owned by other components such as bus failures.
func (m *Metrics) CounterFunc(name, help string, fn func() float64) {
	promauto.With(m.Registry).NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
}

func role(maker bool) string {
	if maker {
		return "maker"
	}
	return "taker"
}

// ObserveFill counts one fill.
func (m *Metrics) ObserveFill(strategy, instrument string, qty uint64, maker bool, commission, slippage float64) {
	m.Fills.WithLabelValues(strategy, role(maker)).Inc()
	m.FillVolume.WithLabelValues(instrument).Add(float64(qty))
	if commission > 0 {
		m.Commission.Add(commission)
	}
	if slippage > 0 {
		m.Slippage.Add(slippage)
	}
}

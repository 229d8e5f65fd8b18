package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus counters/histograms Telemetry Core
// registers and that the internal /metrics route scrapes.
type Metrics struct {
	CyclesTotal      *prometheus.CounterVec
	SignalsFound     prometheus.Counter
	TradesExecuted   *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	BrokerCallsTotal *prometheus.CounterVec
	BrokerLatency    *prometheus.HistogramVec
}

// NewMetrics constructs and registers the metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_cycles_total",
			Help: "Trading cycles by terminal state.",
		}, []string{"state"}),
		SignalsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trader_signals_found_total",
			Help: "Total trading signals surfaced by the Strategy Engine.",
		}),
		TradesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_trades_executed_total",
			Help: "Trades submitted to the broker, by action.",
		}, []string{"action"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trader_cycle_duration_seconds",
			Help:    "Trading cycle end-to-end duration.",
			Buckets: prometheus.DefBuckets,
		}),
		BrokerCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_broker_calls_total",
			Help: "Broker Gateway calls by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		BrokerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trader_broker_call_duration_seconds",
			Help:    "Broker Gateway call latency by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.SignalsFound,
		m.TradesExecuted,
		m.CycleDuration,
		m.BrokerCallsTotal,
		m.BrokerLatency,
	)
	return m
}

package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cycles      *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	patterns    *prometheus.CounterVec
	scores      *prometheus.HistogramVec
	orders      *prometheus.CounterVec
	dailyPnL    *prometheus.GaugeVec
	errorsTotal *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New registers the recorder's collectors on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg. Tests pass a private registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocktrader_cycles_total",
				Help: "Decision cycles by outcome",
			},
			[]string{"outcome"},
		),
		rejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocktrader_rejections_total",
				Help: "Cycles that ended without an order, by reason",
			},
			[]string{"reason"},
		),
		patterns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocktrader_patterns_detected_total",
				Help: "Order blocks detected per timeframe",
			},
			[]string{"timeframe"},
		),
		scores: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blocktrader_pattern_score",
				Help:    "Distribution of pattern scores",
				Buckets: prometheus.LinearBuckets(0, 1, 11),
			},
			[]string{"timeframe"},
		),
		orders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocktrader_orders_total",
				Help: "Bracket orders submitted",
			},
			[]string{"side", "accepted"},
		),
		dailyPnL: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "blocktrader_daily_pnl",
				Help: "Realized profit and loss for the trading day",
			},
			[]string{"symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocktrader_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "blocktrader_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blocktrader_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordCycle(outcome string) {
	r.cycles.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordRejection(reason string) {
	r.rejections.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordPatterns(tf string, n int) {
	r.patterns.WithLabelValues(tf).Add(float64(n))
}

func (r *Recorder) RecordScore(tf string, score float64) {
	r.scores.WithLabelValues(tf).Observe(score)
}

func (r *Recorder) RecordOrder(side string, accepted bool) {
	r.orders.WithLabelValues(side, strconv.FormatBool(accepted)).Inc()
}

func (r *Recorder) RecordDailyPnL(symbol string, pnl float64) {
	r.dailyPnL.WithLabelValues(symbol).Set(pnl)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordCycle(string)              {}
func (Nop) RecordPatterns(string, int)      {}
func (Nop) RecordScore(string, float64)     {}
func (Nop) RecordRejection(string)          {}
func (Nop) RecordOrder(string, bool)        {}
func (Nop) RecordDailyPnL(string, float64)  {}
func (Nop) RecordError(string)              {}
func (Nop) RecordLastPrice(string, float64) {}
func (Nop) RecordLatency(string, float64)   {}

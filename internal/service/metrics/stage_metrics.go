package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	StageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "blocktrader",
			Subsystem: "engine",
			Name:      "stage_latency_seconds",
			Help:      "Latency of decision stages",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"stage"},
	)

	StageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blocktrader",
			Subsystem: "engine",
			Name:      "stage_errors_total",
			Help:      "Errors by decision stage",
		},
		[]string{"stage"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(StageLatency, StageErrors)
	})
}

// ObserveStage records the time since start for stage.
func ObserveStage(stage string, start time.Time) {
	StageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func StageFailed(stage string) {
	StageErrors.WithLabelValues(stage).Inc()
}

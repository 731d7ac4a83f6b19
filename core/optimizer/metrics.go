package optimizer

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	fetchTotal          *prometheus.CounterVec
	fetchDuration       prometheus.Histogram
	planAge             prometheus.Gauge
	consecutiveFailures prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, prometheus.Histogram, prometheus.Gauge, prometheus.Gauge) {
	total := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimizer_fetch_total",
			Help: "Number of optimizer fetch cycles by result",
		},
		[]string{"source", "result"},
	)
	dur := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "optimizer_fetch_duration_seconds",
			Help:    "Duration of optimizer fetch cycles including retries",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)
	age := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "optimizer_plan_age_seconds",
			Help: "Age of the plan in force",
		},
	)
	fails := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "optimizer_consecutive_failures",
			Help: "Number of consecutive failed fetch cycles",
		},
	)
	return total, dur, age, fails
}

func init() {
	fetchTotal, fetchDuration, planAge, consecutiveFailures = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers fetcher metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(fetchTotal, fetchDuration, planAge, consecutiveFailures)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	fetchTotal, fetchDuration, planAge, consecutiveFailures = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}

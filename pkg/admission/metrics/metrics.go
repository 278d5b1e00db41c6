// pkg/admission/metrics/metrics.go

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_checks_total",
			Help: "Total number of admission checks by decision",
		},
		[]string{"decision"},
	)

	checkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "admission_check_duration_seconds",
			Help:    "Admission check duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		},
		[]string{"decision"},
	)

	denialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_denials_total",
			Help: "Total number of denied requests by reason",
		},
		[]string{"reason"},
	)

	storeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_store_failures_total",
			Help: "Total number of counter store failures absorbed by fail-open",
		},
		[]string{"op"},
	)

	storeUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "admission_store_up",
			Help: "Whether the counter store connection is currently live",
		},
	)
)

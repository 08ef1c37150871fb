package admission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	admissionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dropforge",
			Subsystem: "admission",
			Name:      "decisions_total",
			Help:      "Admission decisions by category, outcome and reason",
		},
		[]string{"category", "outcome", "reason"},
	)

	admissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dropforge",
			Subsystem: "admission",
			Name:      "check_duration_seconds",
			Help:      "Time spent on the admission check per request",
		},
		[]string{"category"},
	)

	storeFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dropforge",
			Subsystem: "admission",
			Name:      "store_failures_total",
			Help:      "Shared counter store failures absorbed by fail-open handling",
		},
	)
)

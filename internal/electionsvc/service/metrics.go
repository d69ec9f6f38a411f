package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeImported = "imported"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

type Metrics struct {
	importsTotal      *prometheus.CounterVec
	importErrorsTotal *prometheus.CounterVec
	importDuration    *prometheus.HistogramVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	importsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "electionday",
			Subsystem: "imports",
			Name:      "total",
			Help:      "Result file imports by kind, format and outcome.",
		},
		[]string{"kind", "format", "outcome"},
	)
	registerer.MustRegister(importsTotal)

	importErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "electionday",
			Subsystem: "imports",
			Name:      "file_errors_total",
			Help:      "Data errors reported to uploaders.",
		},
		[]string{"kind", "format"},
	)
	registerer.MustRegister(importErrorsTotal)

	importDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "electionday",
			Subsystem: "imports",
			Name:      "duration_seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind", "format"},
	)
	registerer.MustRegister(importDuration)

	return &Metrics{
		importsTotal:      importsTotal,
		importErrorsTotal: importErrorsTotal,
		importDuration:    importDuration,
	}
}

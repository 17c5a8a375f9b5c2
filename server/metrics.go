package server

import (
	"github.com/cyclopcam/vidinspect/pkg/inspect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are registered on a per-server registry, so that tests can create many servers
type Metrics struct {
	Registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	detectionsTotal    *prometheus.CounterVec
	processingDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vidinspect_requests_total",
			Help: "Total number of inspection requests, by outcome",
		}, []string{"outcome"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vidinspect_stage_duration_seconds",
			Help:    "Duration of each stage of the inspection pipeline",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
		detectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vidinspect_detections_total",
			Help: "Total number of detections above the confidence floor, by label",
		}, []string{"label"}),
		processingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vidinspect_processing_duration_seconds",
			Help:    "Wall clock duration of successful inspections",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observeSuccess(resp *inspect.DetectionResponse) {
	m.requestsTotal.WithLabelValues("ok").Inc()
	m.processingDuration.Observe(resp.ProcessingTimeSeconds)
	for stage, d := range resp.StageDurations {
		m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
	for label, n := range resp.Items {
		m.detectionsTotal.WithLabelValues(label).Add(float64(n))
	}
}

func (m *Metrics) observeFailure(kind inspect.Kind) {
	m.requestsTotal.WithLabelValues(kind.String()).Inc()
}

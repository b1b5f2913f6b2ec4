package facet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

var (
	facetDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "motagg",
		Name:      "facet_duration_ms",
		Help:      "Time (in ms) taken by the engine to run a single facet sub-pipeline",
		Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 30000, 120000, 600000}, // milliseconds
	}, []string{"outcome"})

	planDurationHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "motagg",
		Name:      "parallel_aggregation_duration_ms",
		Help:      "Time (in ms) from dispatching the first facet until the last one finished",
		Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 30000, 120000, 600000}, // milliseconds
	}, []string{"outcome"})

	inflightFacetsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "motagg",
		Name:      "inflight_facets",
		Help:      "Number of facet sub-pipelines currently running against the engine",
	})
)

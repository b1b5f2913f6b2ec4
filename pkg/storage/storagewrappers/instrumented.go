// Package storagewrappers decorates a facet.Engine with cross-cutting behaviour.
package storagewrappers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/bson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pkdone/mongo-uk-car-data/pkg/facet"
)

var _ facet.Engine = (*InstrumentedEngine)(nil)

var engineAggregateHistogram = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "motagg",
	Name:      "engine_aggregate_duration_ms",
	Help:      "Time (in ms) spent in a single Aggregate call to the query engine",
	Buckets:   []float64{1, 10, 50, 100, 500, 1000, 5000, 30000, 120000, 600000}, // milliseconds
}, []string{"outcome"})

// InstrumentedEngine counts and times the Aggregate calls made through it. It is safe for concurrent
// use but, like the counts it keeps, is meant to live for a single command invocation.
type InstrumentedEngine struct {
	facet.Engine

	countAggregates atomic.Uint32
	countDocuments  atomic.Uint64
}

func NewInstrumentedEngine(wrapped facet.Engine) *InstrumentedEngine {
	return &InstrumentedEngine{Engine: wrapped}
}

type Metrics struct {
	AggregateCount uint32
	DocumentCount  uint64
}

func (m *InstrumentedEngine) GetMetrics() Metrics {
	return Metrics{
		AggregateCount: m.countAggregates.Load(),
		DocumentCount:  m.countDocuments.Load(),
	}
}

// Aggregate see [facet.Engine.Aggregate].
func (m *InstrumentedEngine) Aggregate(ctx context.Context, pipeline any) ([]bson.D, error) {
	m.countAggregates.Add(1)

	start := time.Now()
	docs, err := m.Engine.Aggregate(ctx, pipeline)
	elapsed := time.Since(start).Milliseconds()

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	engineAggregateHistogram.WithLabelValues(outcome).Observe(float64(elapsed))

	m.countDocuments.Add(uint64(len(docs)))
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int64("engine_time_ms", elapsed))

	return docs, err
}

package storagewrappers

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.mongodb.org/mongo-driver/bson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pkdone/mongo-uk-car-data/pkg/facet"
)

var _ facet.Engine = (*BoundedConcurrencyEngine)(nil)

var timeWaitingHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "motagg",
	Name:      "time_waiting_for_aggregate_ms",
	Help:      "Time (in ms) spent waiting for a free slot before an Aggregate call to the query engine",
	Buckets:   []float64{1, 10, 25, 50, 100, 1000, 5000, 30000}, // milliseconds
})

// BoundedConcurrencyEngine lets at most N Aggregate calls reach the wrapped engine at once.
type BoundedConcurrencyEngine struct {
	facet.Engine
	limiter chan struct{}
}

// NewBoundedConcurrencyEngine returns a wrapper over an engine that makes sure that there are, at most,
// n concurrent calls to Aggregate, so that a plan with many facets cannot hoard every connection of the
// driver's pool.
func NewBoundedConcurrencyEngine(wrapped facet.Engine, n uint32) *BoundedConcurrencyEngine {
	return &BoundedConcurrencyEngine{
		Engine:  wrapped,
		limiter: make(chan struct{}, n),
	}
}

// Aggregate see [facet.Engine.Aggregate]. It gives up with the context's error if ctx is done
// before a slot frees up.
func (b *BoundedConcurrencyEngine) Aggregate(ctx context.Context, pipeline any) ([]bson.D, error) {
	start := time.Now()

	select {
	case b.limiter <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timeWaiting := time.Since(start).Milliseconds()
	timeWaitingHistogram.Observe(float64(timeWaiting))
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int64("time_waiting", timeWaiting))

	defer func() {
		<-b.limiter
	}()

	return b.Engine.Aggregate(ctx, pipeline)
}

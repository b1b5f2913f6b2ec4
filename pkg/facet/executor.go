package facet

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pkdone/mongo-uk-car-data/internal/concurrency"
	"github.com/pkdone/mongo-uk-car-data/pkg/logger"
	"github.com/pkdone/mongo-uk-car-data/pkg/telemetry"
)

var tracer = otel.Tracer("pkg/facet")

type ExecutorOption func(*Executor)

// WithLogger sets the logger used for per-facet progress and failures.
func WithLogger(l logger.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithCancelOnError makes the first failing facet cancel the context of every facet still
// running. By default a failure is only reported after all facets have finished.
func WithCancelOnError(cancel bool) ExecutorOption {
	return func(e *Executor) {
		e.cancelOnError = cancel
	}
}

func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		e.tracer = t
	}
}

// Executor runs every facet of a plan concurrently against one Engine. It keeps no state between
// calls to Execute and may be reused.
type Executor struct {
	logger        logger.Logger
	tracer        trace.Tracer
	cancelOnError bool
}

func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger: logger.NewNoopLogger(),
		tracer: tracer,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute starts one goroutine per facet, at most len(facets) at a time, and waits for all of them.
// Each result is stored under the name of the facet that produced it.
//
// If any facet fails, Execute returns an *EngineError for the first failure and no results. Unless
// the executor was built WithCancelOnError, the remaining facets still run to completion before
// Execute returns.
func (e *Executor) Execute(ctx context.Context, engine Engine, facets Facets) (Results, error) {
	ctx, span := e.tracer.Start(ctx, "facet.Execute", trace.WithAttributes(
		attribute.Int("facet_count", len(facets)),
		attribute.Bool("cancel_on_error", e.cancelOnError),
	))
	defer span.End()

	results := make(Results, len(facets))
	if len(facets) == 0 {
		return results, nil
	}

	var (
		mu       sync.Mutex
		firstErr *EngineError
	)

	start := time.Now()
	pool := concurrency.NewPool(ctx, len(facets), e.cancelOnError)
	for _, f := range facets {
		pool.Go(func(ctx context.Context) error {
			docs, err := e.run(ctx, engine, f)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				// recorded before returning so that failures caused by the cancellation that
				// this error triggers can never be reported in its place
				engineErr := &EngineError{Facet: f.Name, Err: err}
				if firstErr == nil {
					firstErr = engineErr
				}
				return engineErr
			}
			results[f.Name] = docs
			return nil
		})
	}
	// every failure is also captured in firstErr
	_ = pool.Wait()
	elapsed := time.Since(start)

	if firstErr != nil {
		err := error(firstErr)
		planDurationHistogram.WithLabelValues(outcomeError).Observe(float64(elapsed.Milliseconds()))
		telemetry.TraceError(span, err)
		e.logger.ErrorWithContext(ctx, "parallel facet aggregation failed",
			zap.Error(err),
			zap.Duration("elapsed", elapsed),
		)
		return nil, err
	}

	planDurationHistogram.WithLabelValues(outcomeSuccess).Observe(float64(elapsed.Milliseconds()))
	e.logger.InfoWithContext(ctx, "parallel facet aggregation completed",
		zap.Strings("facets", facets.Names()),
		zap.Duration("elapsed", elapsed),
	)
	return results, nil
}

func (e *Executor) run(ctx context.Context, engine Engine, f Facet) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "facet.Task", trace.WithAttributes(attribute.String("facet", f.Name)))
	defer span.End()

	inflightFacetsGauge.Inc()
	defer inflightFacetsGauge.Dec()

	start := time.Now()
	docs, err := engine.Aggregate(ctx, f.Pipeline)
	elapsed := time.Since(start)

	if err != nil {
		facetDurationHistogram.WithLabelValues(outcomeError).Observe(float64(elapsed.Milliseconds()))
		telemetry.TraceError(span, err)
		e.logger.WarnWithContext(ctx, "facet aggregation failed",
			zap.String("facet", f.Name),
			zap.Error(err),
		)
		return nil, err
	}

	facetDurationHistogram.WithLabelValues(outcomeSuccess).Observe(float64(elapsed.Milliseconds()))
	span.SetAttributes(attribute.Int("documents", len(docs)))
	e.logger.DebugWithContext(ctx, "facet aggregation completed",
		zap.String("facet", f.Name),
		zap.Int("documents", len(docs)),
		zap.Duration("elapsed", elapsed),
	)

	if docs == nil {
		return Result{}, nil
	}
	return Result(docs), nil
}

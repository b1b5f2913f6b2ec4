package facet

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// AggregateInParallel validates query as a single $facet stage, runs each facet concurrently against
// engine and merges the results. It returns either a complete envelope or an error: a
// *StructuralError when the query has the wrong shape (no engine call is made), or an *EngineError
// naming the facet that failed.
func AggregateInParallel(ctx context.Context, engine Engine, query LogicalQuery, opts ...ExecutorOption) (Envelope, error) {
	facets, err := Validate(query)
	if err != nil {
		return nil, err
	}

	results, err := NewExecutor(opts...).Execute(ctx, engine, facets)
	if err != nil {
		return nil, err
	}

	return Merge(results), nil
}

// AggregateSequential sends query to engine as one aggregation and decodes its output into the same
// Envelope shape AggregateInParallel returns.
func AggregateSequential(ctx context.Context, engine Engine, query LogicalQuery) (Envelope, error) {
	docs, err := engine.Aggregate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	envelope := make(Envelope, 0, len(docs))
	for i, doc := range docs {
		raw, err := bson.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode result document %d: %w", i, err)
		}

		results := Results{}
		if err := bson.Unmarshal(raw, &results); err != nil {
			return nil, fmt.Errorf("decode result document %d: %w", i, err)
		}
		envelope = append(envelope, results)
	}
	return envelope, nil
}

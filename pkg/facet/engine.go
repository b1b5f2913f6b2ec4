//go:generate mockgen -source engine.go -destination ./mocks/mock_engine.go -package mocks Engine

package facet

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// Engine runs one aggregation pipeline and returns its documents in the order the server produced
// them. Implementations must be safe for concurrent use: the Executor calls Aggregate from one
// goroutine per facet against the same value.
type Engine interface {
	Aggregate(ctx context.Context, pipeline any) ([]bson.D, error)
}

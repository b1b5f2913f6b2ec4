package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pkdone/mongo-uk-car-data/pkg/facet"
	"github.com/pkdone/mongo-uk-car-data/pkg/loader"
	"github.com/pkdone/mongo-uk-car-data/pkg/telemetry"
)

var (
	_ facet.Engine  = (*Collection)(nil)
	_ loader.Writer = (*Collection)(nil)
)

// MakeModelIndex is the compound index the example aggregations group on.
var MakeModelIndex = bson.D{{Key: "Make", Value: 1}, {Key: "Model", Value: 1}}

// Collection runs aggregations against, and inserts into, one MongoDB collection. It is safe for
// concurrent use.
type Collection struct {
	coll *mongo.Collection
	cfg  *Config
}

// NewCollection wraps coll. A nil cfg uses the defaults.
func NewCollection(coll *mongo.Collection, cfg *Config) *Collection {
	if cfg == nil {
		cfg = newConfig()
	}
	return &Collection{coll: coll, cfg: cfg}
}

// Namespace returns "database.collection".
func (c *Collection) Namespace() string {
	return c.coll.Database().Name() + "." + c.coll.Name()
}

// Aggregate runs pipeline and drains the cursor, keeping documents in server order.
func (c *Collection) Aggregate(ctx context.Context, pipeline any) ([]bson.D, error) {
	ctx, span := tracer.Start(ctx, "mongodb.Aggregate", trace.WithAttributes(
		attribute.String("db.namespace", c.Namespace()),
	))
	defer span.End()

	cursor, err := c.coll.Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(c.cfg.AllowDiskUse))
	if err != nil {
		telemetry.TraceError(span, err)
		return nil, err
	}
	defer cursor.Close(ctx)

	docs := []bson.D{}
	if err := cursor.All(ctx, &docs); err != nil {
		telemetry.TraceError(span, err)
		return nil, fmt.Errorf("read aggregation cursor: %w", err)
	}

	span.SetAttributes(attribute.Int("documents", len(docs)))
	return docs, nil
}

// InsertMany writes docs in a single unordered batch.
func (c *Collection) InsertMany(ctx context.Context, docs []any) error {
	if len(docs) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "mongodb.InsertMany", trace.WithAttributes(
		attribute.String("db.namespace", c.Namespace()),
		attribute.Int("documents", len(docs)),
	))
	defer span.End()

	if _, err := c.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false)); err != nil {
		telemetry.TraceError(span, err)
		return err
	}
	return nil
}

// EnsureIndexes creates the Make/Model index used by the example aggregations and returns its name.
func (c *Collection) EnsureIndexes(ctx context.Context) (string, error) {
	name, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: MakeModelIndex})
	if err != nil {
		return "", fmt.Errorf("create index on %s: %w", c.Namespace(), err)
	}
	c.cfg.Logger.Info("index ready", zap.String("namespace", c.Namespace()), zap.String("index", name))
	return name, nil
}

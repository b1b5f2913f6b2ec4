package mongodb

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/pkdone/mongo-uk-car-data/pkg/facet"
	"github.com/pkdone/mongo-uk-car-data/pkg/logger"
)

func TestCollectionAggregate(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("keeps_server_order_across_batches", func(mt *mtest.T) {
		c := NewCollection(mt.Coll, nil)
		ns := c.Namespace()

		mt.AddMockResponses(
			mtest.CreateCursorResponse(1, ns, mtest.FirstBatch,
				bson.D{{Key: "FuelType", Value: "PE"}, {Key: "CarAmount", Value: int32(3)}},
				bson.D{{Key: "FuelType", Value: "DI"}, {Key: "CarAmount", Value: int32(2)}},
			),
			mtest.CreateCursorResponse(0, ns, mtest.NextBatch,
				bson.D{{Key: "FuelType", Value: "EL"}, {Key: "CarAmount", Value: int32(1)}},
			),
		)

		docs, err := c.Aggregate(context.Background(), bson.A{bson.D{{Key: "$sort", Value: bson.D{{Key: "CarAmount", Value: -1}}}}})
		require.NoError(mt, err)
		require.Len(mt, docs, 3)
		require.Equal(mt, "PE", docs[0][0].Value)
		require.Equal(mt, "DI", docs[1][0].Value)
		require.Equal(mt, "EL", docs[2][0].Value)
	})

	mt.Run("empty_result_is_not_nil", func(mt *mtest.T) {
		c := NewCollection(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, c.Namespace(), mtest.FirstBatch))

		docs, err := c.Aggregate(context.Background(), bson.A{})
		require.NoError(mt, err)
		require.NotNil(mt, docs)
		require.Empty(mt, docs)
	})

	mt.Run("server_error", func(mt *mtest.T) {
		c := NewCollection(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    40324,
			Name:    "Location40324",
			Message: "Unrecognized pipeline stage name: '$bogus'",
		}))

		docs, err := c.Aggregate(context.Background(), bson.A{bson.D{{Key: "$bogus", Value: 1}}})
		require.ErrorContains(mt, err, "Unrecognized pipeline stage name")
		require.Nil(mt, docs)
	})

	mt.Run("through_datastore", func(mt *mtest.T) {
		ds := NewDatastore(mt.Client, WithAllowDiskUse(false))
		require.False(mt, ds.cfg.AllowDiskUse)

		c := ds.Collection(mt.DB.Name(), mt.Coll.Name())
		require.Equal(mt, mt.DB.Name()+"."+mt.Coll.Name(), c.Namespace())

		mt.AddMockResponses(mtest.CreateCursorResponse(0, c.Namespace(), mtest.FirstBatch,
			bson.D{{Key: "Make", Value: "FORD"}},
		))

		docs, err := c.Aggregate(context.Background(), bson.A{bson.D{{Key: "$limit", Value: 1}}})
		require.NoError(mt, err)
		require.Equal(mt, []bson.D{{{Key: "Make", Value: "FORD"}}}, docs)
	})

	mt.Run("as_facet_engine", func(mt *mtest.T) {
		c := NewCollection(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, c.Namespace(), mtest.FirstBatch,
			bson.D{{Key: "n", Value: int32(1)}},
		))

		query := facet.LogicalQuery{{{Key: facet.Marker, Value: bson.D{
			{Key: "Only", Value: bson.A{bson.D{{Key: "$limit", Value: 1}}}},
		}}}}
		envelope, err := facet.AggregateInParallel(context.Background(), c, query)
		require.NoError(mt, err)
		require.Equal(mt, facet.Envelope{facet.Results{"Only": facet.Result{{{Key: "n", Value: int32(1)}}}}}, envelope)
	})
}

func TestCollectionInsertMany(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		c := NewCollection(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: int32(2)}))

		err := c.InsertMany(context.Background(), []any{
			bson.D{{Key: "TestId", Value: 1}},
			bson.D{{Key: "TestId", Value: 2}},
		})
		require.NoError(mt, err)
	})

	mt.Run("empty_batch_skips_server", func(mt *mtest.T) {
		c := NewCollection(mt.Coll, nil)
		require.NoError(mt, c.InsertMany(context.Background(), nil))
	})

	mt.Run("server_error", func(mt *mtest.T) {
		c := NewCollection(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    13,
			Name:    "Unauthorized",
			Message: "not authorized on mot to execute command",
		}))

		err := c.InsertMany(context.Background(), []any{bson.D{{Key: "TestId", Value: 1}}})
		require.ErrorContains(mt, err, "not authorized")
	})
}

func TestCollectionEnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("creates_make_model_index", func(mt *mtest.T) {
		c := NewCollection(mt.Coll, nil)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		name, err := c.EnsureIndexes(context.Background())
		require.NoError(mt, err)
		require.Equal(mt, "Make_1_Model_1", name)
	})
}

func TestPingWithBackoff(t *testing.T) {
	t.Run("retries_until_reachable", func(t *testing.T) {
		log, logs := logger.NewObserverLogger("warn")
		cfg := newConfig(WithLogger(log), WithConnectTimeout(10*time.Second))

		var attempts atomic.Int32
		err := pingWithBackoff(context.Background(), cfg, func(context.Context) error {
			if attempts.Add(1) < 3 {
				return errors.New("connection refused")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, int32(3), attempts.Load())
		require.Equal(t, 2, logs.FilterMessage("mongodb not reachable yet, retrying").Len())
	})

	t.Run("gives_up_after_timeout", func(t *testing.T) {
		cfg := newConfig(WithConnectTimeout(50 * time.Millisecond))

		err := pingWithBackoff(context.Background(), cfg, func(context.Context) error {
			return errors.New("connection refused")
		})
		require.EqualError(t, err, "connection refused")
	})

	t.Run("stops_on_context_cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := pingWithBackoff(ctx, newConfig(), func(context.Context) error {
			return errors.New("connection refused")
		})
		require.Error(t, err)
	})
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := newConfig()
	require.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
	require.False(t, cfg.AllowDiskUse)
	require.NotNil(t, cfg.Logger)

	cfg = newConfig(WithAllowDiskUse(true), WithMaxPoolSize(16))
	require.True(t, cfg.AllowDiskUse)
	require.Equal(t, uint64(16), cfg.MaxPoolSize)
}

// Package mongodb connects to the MongoDB deployment holding the MOT test results and exposes a
// collection as both the aggregation engine and the bulk loader's sink.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/pkdone/mongo-uk-car-data/internal/build"
	"github.com/pkdone/mongo-uk-car-data/pkg/logger"
)

var tracer = otel.Tracer("pkg/storage/mongodb")

const (
	DefaultURI            = "mongodb://localhost:27017/"
	DefaultDatabase       = "mot"
	DefaultCollection     = "testresults"
	DefaultConnectTimeout = time.Minute
)

// Config defines the parameters for setting up a MongoDB connection.
type Config struct {
	Logger         logger.Logger
	ConnectTimeout time.Duration
	AllowDiskUse   bool
	MaxPoolSize    uint64
}

// DatastoreOption defines a function type used for configuring a Config object.
type DatastoreOption func(*Config)

func WithLogger(l logger.Logger) DatastoreOption {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

// WithConnectTimeout bounds how long Connect keeps retrying the initial ping.
func WithConnectTimeout(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnectTimeout = d
	}
}

// WithAllowDiskUse lets aggregation stages spill to disk once they exceed the server memory limit.
// Grouping the full MOT data set needs it.
func WithAllowDiskUse(allow bool) DatastoreOption {
	return func(cfg *Config) {
		cfg.AllowDiskUse = allow
	}
}

// WithMaxPoolSize caps the driver's connection pool. Zero keeps the driver default.
func WithMaxPoolSize(n uint64) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxPoolSize = n
	}
}

func newConfig(opts ...DatastoreOption) *Config {
	cfg := &Config{
		Logger:         logger.NewNoopLogger(),
		ConnectTimeout: DefaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Datastore owns the client connection. A *mongo.Client is safe for concurrent use, so every
// Collection handed out shares it.
type Datastore struct {
	client *mongo.Client
	cfg    *Config
}

// Connect dials uri and waits, with exponential backoff, until the deployment answers a ping.
func Connect(ctx context.Context, uri string, opts ...DatastoreOption) (*Datastore, error) {
	cfg := newConfig(opts...)

	clientOpts := options.Client().
		ApplyURI(uri).
		SetAppName("motagg/" + build.Version)
	if cfg.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	err = pingWithBackoff(ctx, cfg, func(ctx context.Context) error {
		return client.Ping(ctx, readpref.Primary())
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to initialize mongodb connection: %w", err)
	}

	cfg.Logger.Info("connected to mongodb", zap.Strings("hosts", clientOpts.Hosts))

	return &Datastore{client: client, cfg: cfg}, nil
}

// NewDatastore wraps an already connected client.
func NewDatastore(client *mongo.Client, opts ...DatastoreOption) *Datastore {
	return &Datastore{client: client, cfg: newConfig(opts...)}
}

func pingWithBackoff(ctx context.Context, cfg *Config, ping func(context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.ConnectTimeout

	return backoff.RetryNotify(
		func() error {
			return ping(ctx)
		},
		backoff.WithContext(policy, ctx),
		func(err error, next time.Duration) {
			cfg.Logger.Warn("mongodb not reachable yet, retrying",
				zap.Error(err),
				zap.Duration("retry_in", next),
			)
		},
	)
}

// Collection returns the named collection of database.
func (d *Datastore) Collection(database, name string) *Collection {
	return NewCollection(d.client.Database(database).Collection(name), d.cfg)
}

// Close disconnects the client.
func (d *Datastore) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// Package config contains all knobs and defaults used to configure the motagg
// commands.
package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pkdone/mongo-uk-car-data/pkg/loader"
	"github.com/pkdone/mongo-uk-car-data/pkg/storage/mongodb"
)

const (
	DefaultLogFormat = "text"
	DefaultLogLevel  = "info"

	DefaultMetricsAddr = "0.0.0.0:2112"

	DefaultTraceServiceName = "motagg"
	DefaultTraceSampleRatio = 0.2
	DefaultOTLPEndpoint     = "0.0.0.0:4317"

	DefaultMaxPoolSize = 100
)

// MongoDBConfig defines the configuration of the MongoDB deployment holding
// the MOT test results.
type MongoDBConfig struct {
	URI            string
	Database       string
	Collection     string
	ConnectTimeout time.Duration
	AllowDiskUse   bool
	MaxPoolSize    uint64

	// MaxConcurrentAggregates caps the aggregations in flight against the
	// collection. 0 means one per facet.
	MaxConcurrentAggregates uint32
}

type LogConfig struct {
	// Format is the log format to use in the log output (e.g. 'text' or 'json')
	Format string

	// Level is the log level to use in the log output (e.g. 'none', 'debug', or 'info')
	Level string
}

type OTLPTraceConfig struct {
	Endpoint string
}

type TraceConfig struct {
	Enabled     bool
	OTLP        OTLPTraceConfig `mapstructure:"otlp"`
	SampleRatio float64
	ServiceName string
}

// MetricConfig defines configurations for serving custom metrics from motagg.
type MetricConfig struct {
	Enabled bool
	Addr    string
}

// AggregateConfig controls how `$facet` pipelines are executed.
type AggregateConfig struct {
	// Sequential sends the whole `$facet` pipeline to the server in one call
	// instead of fanning out one call per facet.
	Sequential bool

	// CancelOnError cancels the facets still running once one of them fails.
	CancelOnError bool
}

type LoadConfig struct {
	BatchSize   int
	Concurrency int
}

type Config struct {
	MongoDB   MongoDBConfig `mapstructure:"mongodb"`
	Log       LogConfig
	Trace     TraceConfig
	Metrics   MetricConfig
	Aggregate AggregateConfig
	Load      LoadConfig
}

// DefaultConfig returns the motagg default configuration.
func DefaultConfig() *Config {
	return &Config{
		MongoDB: MongoDBConfig{
			URI:            mongodb.DefaultURI,
			Database:       mongodb.DefaultDatabase,
			Collection:     mongodb.DefaultCollection,
			ConnectTimeout: mongodb.DefaultConnectTimeout,
			AllowDiskUse:   true,
			MaxPoolSize:    DefaultMaxPoolSize,
		},
		Log: LogConfig{
			Format: DefaultLogFormat,
			Level:  DefaultLogLevel,
		},
		Trace: TraceConfig{
			Enabled: false,
			OTLP: OTLPTraceConfig{
				Endpoint: DefaultOTLPEndpoint,
			},
			SampleRatio: DefaultTraceSampleRatio,
			ServiceName: DefaultTraceServiceName,
		},
		Metrics: MetricConfig{
			Enabled: false,
			Addr:    DefaultMetricsAddr,
		},
		Aggregate: AggregateConfig{
			Sequential:    false,
			CancelOnError: false,
		},
		Load: LoadConfig{
			BatchSize:   loader.DefaultBatchSize,
			Concurrency: loader.DefaultConcurrency,
		},
	}
}

func (cfg *Config) Verify() error {
	if cfg.MongoDB.URI == "" {
		return errors.New("config 'mongodb.uri' must be set")
	}

	if cfg.MongoDB.Database == "" || cfg.MongoDB.Collection == "" {
		return errors.New("config 'mongodb.database' and 'mongodb.collection' must be set")
	}

	if cfg.MongoDB.ConnectTimeout <= 0 {
		return fmt.Errorf("config 'mongodb.connectTimeout' (%s) must be greater than zero", cfg.MongoDB.ConnectTimeout)
	}

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		return fmt.Errorf("config 'log.format' must be one of ['text', 'json']")
	}

	if cfg.Log.Level != "none" &&
		cfg.Log.Level != "debug" &&
		cfg.Log.Level != "info" &&
		cfg.Log.Level != "warn" &&
		cfg.Log.Level != "error" &&
		cfg.Log.Level != "panic" &&
		cfg.Log.Level != "fatal" {
		return fmt.Errorf(
			"config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error', 'panic', 'fatal']",
		)
	}

	if cfg.Trace.Enabled {
		if cfg.Trace.SampleRatio < 0 || cfg.Trace.SampleRatio > 1 {
			return fmt.Errorf("config 'trace.sampleRatio' (%v) must be between 0 and 1", cfg.Trace.SampleRatio)
		}
		if cfg.Trace.ServiceName == "" {
			return errors.New("config 'trace.serviceName' must be set when tracing is enabled")
		}
	}

	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
			return fmt.Errorf("config 'metrics.addr' must be a valid 'host:port' address: %w", err)
		}
	}

	if cfg.Load.BatchSize <= 0 {
		return fmt.Errorf("config 'load.batchSize' (%d) must be greater than zero", cfg.Load.BatchSize)
	}

	if cfg.Load.Concurrency <= 0 {
		return fmt.Errorf("config 'load.concurrency' (%d) must be greater than zero", cfg.Load.Concurrency)
	}

	return nil
}

// MustDefaultConfig returns the default configuration, panicking if it does
// not verify.
func MustDefaultConfig() *Config {
	cfg := DefaultConfig()
	if err := cfg.Verify(); err != nil {
		panic(err)
	}
	return cfg
}

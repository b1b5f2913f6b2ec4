// Package util provides common utilities for spf13/cobra CLI utilities
// that can be used for various commands within this project.
package util

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pkdone/mongo-uk-car-data/pkg/config"
)

// MustBindPFlag attempts to bind a specific key to a pflag (as used by cobra) and panics
// if the binding fails with a non-nil error.
func MustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

func MustBindEnv(input ...string) {
	if err := viper.BindEnv(input...); err != nil {
		panic("failed to bind env key: " + err.Error())
	}
}

// ReadConfig builds the configuration from the defaults, then config.yaml (if
// any), then the environment and finally the command line flags.
func ReadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// AddCommonFlags declares the flags every command that talks to MongoDB shares.
// They are bound to viper by BindCommonFlagsFunc when the command runs, so that
// several commands can declare the same flag names.
func AddCommonFlags(flags *pflag.FlagSet) {
	defaultConfig := config.DefaultConfig()

	flags.String("mongodb-uri", defaultConfig.MongoDB.URI, "the connection uri of the MongoDB deployment (e.g. 'mongodb://localhost:27017/')")
	flags.String("mongodb-database", defaultConfig.MongoDB.Database, "the database holding the MOT test results")
	flags.String("mongodb-collection", defaultConfig.MongoDB.Collection, "the collection holding the MOT test results")
	flags.Duration("mongodb-connect-timeout", defaultConfig.MongoDB.ConnectTimeout, "a timeout for the time it takes to connect to MongoDB")
	flags.Bool("mongodb-allow-disk-use", defaultConfig.MongoDB.AllowDiskUse, "allow aggregation stages to write temporary files on the server")
	flags.Uint64("mongodb-max-pool-size", defaultConfig.MongoDB.MaxPoolSize, "the maximum number of connections in the driver's pool")
	flags.Uint32("mongodb-max-concurrent-aggregates", defaultConfig.MongoDB.MaxConcurrentAggregates, "the maximum number of aggregations running at once against the collection (0 means no limit)")

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in ('text' or 'json')")
	flags.String("log-level", defaultConfig.Log.Level, "the log level to use ('none', 'debug', 'info', 'warn', 'error', 'panic', 'fatal')")

	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")
	flags.String("trace-otlp-endpoint", defaultConfig.Trace.OTLP.Endpoint, "the endpoint of the trace collector")
	flags.Float64("trace-sample-ratio", defaultConfig.Trace.SampleRatio, "the fraction of traces to sample. 1 means all, 0 means none")
	flags.String("trace-service-name", defaultConfig.Trace.ServiceName, "the service name included in sampled traces")

	flags.Bool("metrics-enabled", defaultConfig.Metrics.Enabled, "enable/disable prometheus metrics while the command runs")
	flags.String("metrics-addr", defaultConfig.Metrics.Addr, "the host:port address to serve the prometheus metrics server on")
}

// BindCommonFlagsFunc returns a PreRun function binding the flags declared by
// AddCommonFlags to their config keys and MOTAGG_* environment variables.
func BindCommonFlagsFunc(flags *pflag.FlagSet) func(*cobra.Command, []string) {
	return func(_ *cobra.Command, _ []string) {
		MustBindPFlag("mongodb.uri", flags.Lookup("mongodb-uri"))
		MustBindEnv("mongodb.uri", "MOTAGG_MONGODB_URI")

		MustBindPFlag("mongodb.database", flags.Lookup("mongodb-database"))
		MustBindEnv("mongodb.database", "MOTAGG_MONGODB_DATABASE")

		MustBindPFlag("mongodb.collection", flags.Lookup("mongodb-collection"))
		MustBindEnv("mongodb.collection", "MOTAGG_MONGODB_COLLECTION")

		MustBindPFlag("mongodb.connectTimeout", flags.Lookup("mongodb-connect-timeout"))
		MustBindEnv("mongodb.connectTimeout", "MOTAGG_MONGODB_CONNECT_TIMEOUT")

		MustBindPFlag("mongodb.allowDiskUse", flags.Lookup("mongodb-allow-disk-use"))
		MustBindEnv("mongodb.allowDiskUse", "MOTAGG_MONGODB_ALLOW_DISK_USE")

		MustBindPFlag("mongodb.maxPoolSize", flags.Lookup("mongodb-max-pool-size"))
		MustBindEnv("mongodb.maxPoolSize", "MOTAGG_MONGODB_MAX_POOL_SIZE")

		MustBindPFlag("mongodb.maxConcurrentAggregates", flags.Lookup("mongodb-max-concurrent-aggregates"))
		MustBindEnv("mongodb.maxConcurrentAggregates", "MOTAGG_MONGODB_MAX_CONCURRENT_AGGREGATES")

		MustBindPFlag("log.format", flags.Lookup("log-format"))
		MustBindEnv("log.format", "MOTAGG_LOG_FORMAT")

		MustBindPFlag("log.level", flags.Lookup("log-level"))
		MustBindEnv("log.level", "MOTAGG_LOG_LEVEL")

		MustBindPFlag("trace.enabled", flags.Lookup("trace-enabled"))
		MustBindEnv("trace.enabled", "MOTAGG_TRACE_ENABLED")

		MustBindPFlag("trace.otlp.endpoint", flags.Lookup("trace-otlp-endpoint"))
		MustBindEnv("trace.otlp.endpoint", "MOTAGG_TRACE_OTLP_ENDPOINT")

		MustBindPFlag("trace.sampleRatio", flags.Lookup("trace-sample-ratio"))
		MustBindEnv("trace.sampleRatio", "MOTAGG_TRACE_SAMPLE_RATIO")

		MustBindPFlag("trace.serviceName", flags.Lookup("trace-service-name"))
		MustBindEnv("trace.serviceName", "MOTAGG_TRACE_SERVICE_NAME")

		MustBindPFlag("metrics.enabled", flags.Lookup("metrics-enabled"))
		MustBindEnv("metrics.enabled", "MOTAGG_METRICS_ENABLED")

		MustBindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
		MustBindEnv("metrics.addr", "MOTAGG_METRICS_ADDR")
	}
}

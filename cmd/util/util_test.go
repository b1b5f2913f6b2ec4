package util

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/pkdone/mongo-uk-car-data/pkg/config"
)

func newCommonFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddCommonFlags(flags)
	require.NoError(t, flags.Parse(args))

	BindCommonFlagsFunc(flags)(nil, nil)
	return flags
}

func TestReadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		newCommonFlags(t)

		cfg, err := ReadConfig()
		require.NoError(t, err)
		require.Equal(t, config.DefaultConfig(), cfg)
	})

	t.Run("flags", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		newCommonFlags(t,
			"--mongodb-uri", "mongodb://db:27017/",
			"--mongodb-connect-timeout", "5s",
			"--log-format", "json",
			"--trace-enabled",
			"--trace-sample-ratio", "0.5",
			"--metrics-addr", "localhost:9090",
		)

		cfg, err := ReadConfig()
		require.NoError(t, err)
		require.Equal(t, "mongodb://db:27017/", cfg.MongoDB.URI)
		require.Equal(t, 5*time.Second, cfg.MongoDB.ConnectTimeout)
		require.Equal(t, "json", cfg.Log.Format)
		require.True(t, cfg.Trace.Enabled)
		require.InDelta(t, 0.5, cfg.Trace.SampleRatio, 0.0001)
		require.Equal(t, "localhost:9090", cfg.Metrics.Addr)
	})

	t.Run("env_overrides_flag_defaults", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)
		t.Setenv("MOTAGG_MONGODB_DATABASE", "dvsa")
		t.Setenv("MOTAGG_LOG_LEVEL", "debug")
		newCommonFlags(t, "--log-level", "warn")

		cfg, err := ReadConfig()
		require.NoError(t, err)
		require.Equal(t, "dvsa", cfg.MongoDB.Database)
		require.Equal(t, "warn", cfg.Log.Level)
	})

	t.Run("config_file", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)

		dir := t.TempDir()
		err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
mongodb:
  collection: results2023
  connectTimeout: 10s
aggregate:
  sequential: true
  cancelOnError: true
load:
  batchSize: 500
  concurrency: 4
`), 0o600)
		require.NoError(t, err)

		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(dir)
		newCommonFlags(t)

		cfg, err := ReadConfig()
		require.NoError(t, err)
		require.Equal(t, "results2023", cfg.MongoDB.Collection)
		require.Equal(t, 10*time.Second, cfg.MongoDB.ConnectTimeout)
		require.True(t, cfg.Aggregate.Sequential)
		require.True(t, cfg.Aggregate.CancelOnError)
		require.Equal(t, 500, cfg.Load.BatchSize)
		require.Equal(t, 4, cfg.Load.Concurrency)
	})

	t.Run("malformed_config_file", func(t *testing.T) {
		viper.Reset()
		t.Cleanup(viper.Reset)

		dir := t.TempDir()
		err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("mongodb: [\n"), 0o600)
		require.NoError(t, err)

		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(dir)

		_, err = ReadConfig()
		require.ErrorContains(t, err, "failed to load config")
	})
}

func TestRuntime(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.Level = "none"

	rt, err := NewRuntime(cfg)
	require.NoError(t, err)
	require.NotNil(t, rt.Logger)
	require.NoError(t, rt.Close(context.Background()))

	cfg.Log.Format = "xml"
	cfg.Log.Level = "info"
	_, err = NewRuntime(cfg)
	require.EqualError(t, err, "unknown log format: xml")
}

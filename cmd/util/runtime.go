package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/pkdone/mongo-uk-car-data/pkg/config"
	"github.com/pkdone/mongo-uk-car-data/pkg/logger"
	"github.com/pkdone/mongo-uk-car-data/pkg/telemetry"
)

// Runtime holds the logger, tracer provider and metrics server a command runs with.
type Runtime struct {
	Config *config.Config
	Logger logger.Logger

	tracerProvider telemetry.TracerProvider
	metricsServer  *http.Server
}

// NewRuntime starts the ambient services described by cfg. Close must be called
// once the command is done.
func NewRuntime(cfg *config.Config) (*Runtime, error) {
	log, err := logger.NewLogger(cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Config:         cfg,
		Logger:         log,
		tracerProvider: telemetry.Noop(),
	}

	if cfg.Trace.Enabled {
		log.Info(fmt.Sprintf("🕵 tracing enabled: sampling ratio is %v and sending traces to '%s'", cfg.Trace.SampleRatio, cfg.Trace.OTLP.Endpoint))

		tp, err := telemetry.NewTracerProvider(
			telemetry.WithOTLPEndpoint(cfg.Trace.OTLP.Endpoint),
			telemetry.WithServiceName(cfg.Trace.ServiceName),
			telemetry.WithSamplingRatio(cfg.Trace.SampleRatio),
		)
		if err != nil {
			return nil, err
		}
		rt.tracerProvider = tp
	} else {
		otel.SetTracerProvider(rt.tracerProvider)
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		rt.metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			log.Info(fmt.Sprintf("📈 starting prometheus metrics server on '%s'", cfg.Metrics.Addr))
			if err := rt.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("failed to start prometheus metrics server", zap.Error(err))
			}
		}()
	}

	return rt, nil
}

// Close flushes pending spans and stops the metrics server.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error

	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown prometheus metrics server: %w", err))
		}
	}

	if err := r.tracerProvider.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to flush traces: %w", err))
	}

	if l, ok := r.Logger.(*logger.ZapLogger); ok {
		_ = l.Sync()
	}

	return errors.Join(errs...)
}

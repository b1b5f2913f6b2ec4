// Package telemetry configures OpenTelemetry tracing for the motagg commands.
package telemetry

import (
	"context"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerProvider is a trace.TracerProvider that can be flushed on exit.
type TracerProvider interface {
	trace.TracerProvider

	Close(context.Context) error
	RegisterSpanProcessor(sdktrace.SpanProcessor)
}

type tracerProvider struct {
	embedded.TracerProvider

	mu sync.Mutex
	tp *sdktrace.TracerProvider
}

// Tracer returns a noop tracer once the provider is closed.
func (t *tracerProvider) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tp == nil {
		return noop.NewTracerProvider().Tracer(name, options...)
	}
	return t.tp.Tracer(name, options...)
}

// Close flushes pending spans and shuts the provider down. Calling it twice is a no-op.
func (t *tracerProvider) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tp == nil {
		return nil
	}
	if err := t.tp.ForceFlush(ctx); err != nil {
		return err
	}
	if err := t.tp.Shutdown(ctx); err != nil {
		return err
	}
	t.tp = nil
	return nil
}

// RegisterSpanProcessor is a no-op once the provider is closed.
func (t *tracerProvider) RegisterSpanProcessor(spanProcessor sdktrace.SpanProcessor) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tp == nil {
		return
	}
	t.tp.RegisterSpanProcessor(spanProcessor)
}

type noopTracerProvider struct {
	embedded.TracerProvider

	tp trace.TracerProvider
}

func (t *noopTracerProvider) Tracer(name string, options ...trace.TracerOption) trace.Tracer {
	return t.tp.Tracer(name, options...)
}

func (t *noopTracerProvider) Close(_ context.Context) error {
	return nil
}

func (t *noopTracerProvider) RegisterSpanProcessor(_ sdktrace.SpanProcessor) {}

// Noop returns a provider whose spans are never recorded. Used when tracing is disabled.
func Noop() TracerProvider {
	return &noopTracerProvider{tp: noop.NewTracerProvider()}
}

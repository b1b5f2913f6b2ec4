package logger

import (
	"context"
	"slices"

	"go.uber.org/zap"
)

type invocationKey struct{}

// ContextWithInvocationID returns a context carrying the ID of the current aggregation or load run.
// Loggers called with that context attach it as the "invocation_id" field.
func ContextWithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationKey{}, id)
}

// InvocationIDFromContext returns the invocation ID stored by ContextWithInvocationID.
func InvocationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(invocationKey{}).(string)
	return id, ok
}

func withInvocation(ctx context.Context, fields []zap.Field) []zap.Field {
	if ctx == nil {
		return fields
	}
	if id, ok := InvocationIDFromContext(ctx); ok {
		return append(slices.Clip(fields), zap.String("invocation_id", id))
	}
	return fields
}

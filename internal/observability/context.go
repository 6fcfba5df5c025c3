package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// contextKey is the type of keys stored in call-scoped contexts.
type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	userIDKey        contextKey = "user_id"
	callInfoKey      contextKey = "call_info"
)

// CallInfo is the per-call state threaded through the interceptor chain.
// It is created when a call enters the chain and dropped when it completes.
type CallInfo struct {
	Method        string
	UserID        string
	CorrelationID string
	StartTime     time.Time
}

// ContextWithCallInfo stores call info in ctx.
func ContextWithCallInfo(ctx context.Context, info *CallInfo) context.Context {
	return context.WithValue(ctx, callInfoKey, info)
}

// CallInfoFromContext returns the call info stored in ctx, or nil.
func CallInfoFromContext(ctx context.Context) *CallInfo {
	info, _ := ctx.Value(callInfoKey).(*CallInfo)
	return info
}

// ContextWithCorrelationID adds a correlation ID to the context.
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext extracts the correlation ID from context.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithUserID adds the authenticated caller identity to the context.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext extracts the caller identity from context.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// extractContextFields extracts logging fields from context.
func extractContextFields(ctx context.Context) []Field {
	var fields []Field

	if id := CorrelationIDFromContext(ctx); id != "" {
		fields = append(fields, String("correlation_id", id))
	}

	if id := UserIDFromContext(ctx); id != "" {
		fields = append(fields, String("user_id", id))
	}

	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, String("trace_id", sc.TraceID().String()))
	}

	return fields
}

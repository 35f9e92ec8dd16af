package observability

import (
	"context"
)

// Context keys for request-level observability data. The operation context
// itself is carried by the opcontext package.
type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	traceIDKey       contextKey = "trace_id"
	spanIDKey        contextKey = "span_id"
)

// WithCorrelationID adds a correlation ID to the context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext retrieves the correlation ID from context.
// Returns empty string if not present.
func CorrelationIDFromContext(ctx context.Context) string {
	if v := ctx.Value(correlationIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithTraceSpan adds trace and span IDs to the context.
func WithTraceSpan(ctx context.Context, traceID, spanID string) context.Context {
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	ctx = context.WithValue(ctx, spanIDKey, spanID)
	return ctx
}

// TraceSpanFromContext retrieves trace and span IDs from context.
// Returns empty strings if not present.
func TraceSpanFromContext(ctx context.Context) (traceID, spanID string) {
	if v := ctx.Value(traceIDKey); v != nil {
		if id, ok := v.(string); ok {
			traceID = id
		}
	}
	if v := ctx.Value(spanIDKey); v != nil {
		if id, ok := v.(string); ok {
			spanID = id
		}
	}
	return traceID, spanID
}

// RequestFields is the request-scoped data an HTTP adapter seeds into an
// operation context.
type RequestFields struct {
	CorrelationID string
	TraceID       string
	SpanID        string
}

// RequestFieldsFromContext extracts all request fields from the context.
func RequestFieldsFromContext(ctx context.Context) RequestFields {
	traceID, spanID := TraceSpanFromContext(ctx)
	return RequestFields{
		CorrelationID: CorrelationIDFromContext(ctx),
		TraceID:       traceID,
		SpanID:        spanID,
	}
}

// Map returns the non-empty fields keyed by their log field names.
func (f RequestFields) Map() map[string]any {
	m := make(map[string]any, 3)
	if f.CorrelationID != "" {
		m[string(correlationIDKey)] = f.CorrelationID
	}
	if f.TraceID != "" {
		m[string(traceIDKey)] = f.TraceID
	}
	if f.SpanID != "" {
		m[string(spanIDKey)] = f.SpanID
	}
	return m
}

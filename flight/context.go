package flight

import (
	"context"

	"google.golang.org/grpc/metadata"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey int

const (
	traceIDKey contextKey = iota
)

// Metadata header keys sent with every planning and fetch call.
const (
	// HeaderAuthorization is the gRPC metadata header for authorization token.
	HeaderAuthorization = "authorization"
	// HeaderSessionID is the gRPC metadata header identifying the executor.
	HeaderSessionID = "x-spice-session-id"
	// HeaderTraceID is the gRPC metadata header identifying one query.
	HeaderTraceID = "x-spice-trace-id"
)

// WithTraceID returns a context whose queries are sent with traceID instead
// of a generated one.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromContext returns the trace ID from context, or empty string if not set.
func TraceIDFromContext(ctx context.Context) string {
	traceID, _ := ctx.Value(traceIDKey).(string)
	return traceID
}

// callMeta is the outgoing metadata of one call.
type callMeta struct {
	Authorization string
	SessionID     string
	TraceID       string
}

func (m callMeta) outgoing(ctx context.Context) context.Context {
	kv := make([]string, 0, 6)
	if m.Authorization != "" {
		kv = append(kv, HeaderAuthorization, m.Authorization)
	}
	if m.SessionID != "" {
		kv = append(kv, HeaderSessionID, m.SessionID)
	}
	if m.TraceID != "" {
		kv = append(kv, HeaderTraceID, m.TraceID)
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}

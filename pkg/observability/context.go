package observability

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// Standard attribute keys used in logs and metrics.
const (
	CorrelationIDKey = "correlation_id"
	RequestIDKey     = "request_id"
	UserIDKey        = "user_id"
	DurationKey      = "duration_ms"
	ErrorKey         = "error"
)

// Headers carrying tracing identifiers across service boundaries.
const (
	CorrelationIDHeader = "X-Correlation-ID"
	RequestIDHeader     = "X-Request-ID"
)

// Trace holds the identifiers that follow a credit check, charge or
// enrichment run through logs and published events.
type Trace struct {
	CorrelationID string
	RequestID     string
	UserID        string
}

type traceKey struct{}

// TraceFromContext returns the identifiers stored in ctx. Missing ones are
// empty.
func TraceFromContext(ctx context.Context) Trace {
	if ctx == nil {
		return Trace{}
	}
	t, _ := ctx.Value(traceKey{}).(Trace)
	return t
}

// Attrs lists the non-empty identifiers as log attributes.
func (t Trace) Attrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, 3)
	if t.CorrelationID != "" {
		attrs = append(attrs, slog.String(CorrelationIDKey, t.CorrelationID))
	}
	if t.RequestID != "" {
		attrs = append(attrs, slog.String(RequestIDKey, t.RequestID))
	}
	if t.UserID != "" {
		attrs = append(attrs, slog.String(UserIDKey, t.UserID))
	}
	return attrs
}

func withTrace(ctx context.Context, update func(*Trace)) context.Context {
	t := TraceFromContext(ctx)
	update(&t)
	return context.WithValue(ctx, traceKey{}, t)
}

// WithCorrelationID adds a correlation ID to the context, generating one
// when id is empty.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return withTrace(ctx, func(t *Trace) { t.CorrelationID = id })
}

// CorrelationIDFromContext extracts the correlation ID from context.
func CorrelationIDFromContext(ctx context.Context) string {
	return TraceFromContext(ctx).CorrelationID
}

// WithRequestID adds a request ID to the context, generating one when id is
// empty.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	return withTrace(ctx, func(t *Trace) { t.RequestID = id })
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	return TraceFromContext(ctx).RequestID
}

// WithUserID records the account whose credits the request acts on.
func WithUserID(ctx context.Context, userID string) context.Context {
	return withTrace(ctx, func(t *Trace) { t.UserID = userID })
}

// UserIDFromContext extracts the user ID from context.
func UserIDFromContext(ctx context.Context) string {
	return TraceFromContext(ctx).UserID
}

// RequestContextFromHTTP seeds tracing identifiers from inbound headers. A
// request without a correlation ID is its own correlation root.
func RequestContextFromHTTP(r *http.Request) context.Context {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	correlationID := r.Header.Get(CorrelationIDHeader)
	if correlationID == "" {
		correlationID = requestID
	}
	return withTrace(r.Context(), func(t *Trace) {
		t.RequestID = requestID
		t.CorrelationID = correlationID
	})
}

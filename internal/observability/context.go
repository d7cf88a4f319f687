package observability

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

// RequestIDKey is the context key for the id of one inbound chat event
const RequestIDKey ContextKey = "request_id"

// NewRequestID generates a new request ID
func NewRequestID() string {
	return uuid.New().String()
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// LoggerFromContext returns base enriched with the request ID from ctx
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	if id := GetRequestID(ctx); id != "" {
		return base.With().Str("request_id", id).Logger()
	}
	return base
}

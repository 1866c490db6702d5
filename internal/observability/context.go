package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	callerIDKey  contextKey = "caller_id"
	projectIDKey contextKey = "project_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithCaller adds the authenticated caller identity and project to the context.
func WithCaller(ctx context.Context, callerID, projectID string) context.Context {
	ctx = context.WithValue(ctx, callerIDKey, callerID)
	return context.WithValue(ctx, projectIDKey, projectID)
}

// CallerFromContext retrieves the caller identity and project from context.
// Returns empty strings if not present.
func CallerFromContext(ctx context.Context) (callerID, projectID string) {
	if v, ok := ctx.Value(callerIDKey).(string); ok {
		callerID = v
	}
	if v, ok := ctx.Value(projectIDKey).(string); ok {
		projectID = v
	}
	return callerID, projectID
}

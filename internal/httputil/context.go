package httputil

import (
	"context"
	"net/http"
)

type contextKey int

const (
	userIDKey contextKey = iota
	requestIDKey
)

// WithUserID attaches the authenticated subject to the request.
func WithUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
}

// GetUserID returns the authenticated subject, or "" for public routes.
func GetUserID(r *http.Request) string {
	userID, _ := r.Context().Value(userIDKey).(string)
	return userID
}

// WithRequestID attaches a correlation id used in log lines.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the correlation id set by the request logger.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

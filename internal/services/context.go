package services

import "context"

type contextKey string

const (
	sessionIDKey contextKey = "session_id"
	probeKey     contextKey = "probe"
	requestIDKey contextKey = "request_id"
)

// WithSessionID annotates context with the recording session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext extracts the session identifier if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithProbe annotates context with the probe name (probeA..probeF).
func WithProbe(ctx context.Context, probe string) context.Context {
	if probe == "" {
		return ctx
	}
	return context.WithValue(ctx, probeKey, probe)
}

// ProbeFromContext returns the probe name if present.
func ProbeFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(probeKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

package services

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	mediaTypeKey contextKey = "media_type"
	pathKey      contextKey = "path"
)

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

// WithMediaType annotates context with the media type of the item being processed.
func WithMediaType(ctx context.Context, media string) context.Context {
	if media == "" {
		return ctx
	}
	return context.WithValue(ctx, mediaTypeKey, media)
}

// MediaTypeFromContext returns the media type if present.
func MediaTypeFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(mediaTypeKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPath annotates context with the source path of the item being processed.
func WithPath(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, pathKey, path)
}

// PathFromContext returns the source path if present.
func PathFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(pathKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

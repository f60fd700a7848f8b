package services

import "context"

type contextKey string

const (
	projectIDKey contextKey = "project_id"
	chapterIDKey contextKey = "chapter_id"
	stageKey     contextKey = "stage"
	operationKey contextKey = "operation"
	requestIDKey contextKey = "request_id"
)

// WithProject annotates context with the project and chapter scope of a session.
func WithProject(ctx context.Context, projectID, chapterID string) context.Context {
	if projectID != "" {
		ctx = context.WithValue(ctx, projectIDKey, projectID)
	}
	if chapterID != "" {
		ctx = context.WithValue(ctx, chapterIDKey, chapterID)
	}
	return ctx
}

// ProjectFromContext returns the project identifier if present.
func ProjectFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, projectIDKey)
}

// ChapterFromContext returns the chapter identifier if present.
func ChapterFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, chapterIDKey)
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, stageKey)
}

// WithOperation annotates context with the operation kind being submitted.
func WithOperation(ctx context.Context, op string) context.Context {
	if op == "" {
		return ctx
	}
	return context.WithValue(ctx, operationKey, op)
}

// OperationFromContext returns the operation kind if present.
func OperationFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, operationKey)
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
	return stringValue(ctx, requestIDKey)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

package observability

import (
	"context"

	"github.com/rs/zerolog"
)

// Context keys for observability data.
type contextKey string

const (
	runIDKey     contextKey = "run_id"
	queryNameKey contextKey = "query"
)

// WithRunID adds a collection run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext retrieves the run ID from context.
// Returns empty string if not present.
func RunIDFromContext(ctx context.Context) string {
	if v := ctx.Value(runIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithQueryName adds the name of the query being collected to the context.
func WithQueryName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, queryNameKey, name)
}

// QueryNameFromContext retrieves the query name from context.
// Returns empty string if not present.
func QueryNameFromContext(ctx context.Context) string {
	if v := ctx.Value(queryNameKey); v != nil {
		if name, ok := v.(string); ok {
			return name
		}
	}
	return ""
}

// LoggerFromContext enriches logger with the run and query carried by ctx.
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	lc := logger.With()
	if id := RunIDFromContext(ctx); id != "" {
		lc = lc.Str("run_id", id)
	}
	if name := QueryNameFromContext(ctx); name != "" {
		lc = lc.Str("query", name)
	}
	return lc.Logger()
}

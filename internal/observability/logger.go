package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	userIDKey    contextKey = "user_id"
	profileIDKey contextKey = "profile_id"
)

var logger *slog.Logger

// InitLogger initializes the global structured logger on stdout
func InitLogger(level, format string) {
	InitLoggerTo(os.Stdout, level, format)
}

// InitLoggerTo initializes the global structured logger on w
func InitLoggerTo(w io.Writer, level, format string) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: level == "debug",
	}

	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// FromContext returns a logger carrying the request, user and persona ids found in ctx
func FromContext(ctx context.Context) *slog.Logger {
	base := logger
	if base == nil {
		base = slog.Default()
	}

	attrs := make([]any, 0, 3)

	if reqID, ok := ctx.Value(requestIDKey).(string); ok && reqID != "" {
		attrs = append(attrs, slog.String("request_id", reqID))
	}
	if userID, ok := ctx.Value(userIDKey).(int64); ok && userID != 0 {
		attrs = append(attrs, slog.String("user_id", strconv.FormatInt(userID, 10)))
	}
	if profileID, ok := ctx.Value(profileIDKey).(int64); ok && profileID != 0 {
		attrs = append(attrs, slog.String("profile_id", strconv.FormatInt(profileID, 10)))
	}

	if len(attrs) > 0 {
		return base.With(attrs...)
	}
	return base
}

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID returns the request ID stored in ctx, if any
func RequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok && id != ""
}

// WithUserID adds the signed-in account id to context
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// WithProfileID adds the active persona id to context
func WithProfileID(ctx context.Context, profileID int64) context.Context {
	return context.WithValue(ctx, profileIDKey, profileID)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

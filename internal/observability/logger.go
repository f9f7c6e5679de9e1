package observability

import (
	"context"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const userIDKey contextKey = "user_id"

// LogConfig configures NewLogger. Format is "json" or "text"/"console".
type LogConfig struct {
	Level  string
	Format string
	App    string
	Env    string
}

// NewLogger builds the process logger
func NewLogger(c LogConfig) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(c.Format) {
	case "text", "console":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(c.Level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	return cfg.Build(
		zap.Fields(
			zap.String("service", c.App),
			zap.String("env", c.Env),
		),
	)
}

// FromContext returns base enriched with the request id and user id found
// in ctx.
func FromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}

	fields := make([]zap.Field, 0, 2)
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		fields = append(fields, zap.String("request_id", reqID))
	}
	if userID, ok := ctx.Value(userIDKey).(int64); ok && userID > 0 {
		fields = append(fields, zap.Int64("user_id", userID))
	}

	if len(fields) > 0 {
		return base.With(fields...)
	}
	return base
}

// WithUserID records the authenticated user id for log enrichment.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func parseLevel(level string) zapcore.Level {
	l := new(zapcore.Level)
	if err := l.Set(strings.ToLower(level)); err != nil {
		return zapcore.InfoLevel
	}
	return *l
}

package middleware

import (
	"net/http"
	"time"

	"github.com/doguto/nari-note-sub000/internal/observability"

	"go.uber.org/zap"
)

// RequestLogger logs one line per request. It must run after chi's
// RequestID middleware so the line carries the request id.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := wrapWriter(w)

			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("route", routePattern(r)),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.Int("bytes", ww.bytes),
			}

			l := observability.FromContext(r.Context(), log)
			switch {
			case ww.statusCode >= 500:
				l.Error("request", fields...)
			case ww.statusCode >= 400:
				l.Warn("request", fields...)
			default:
				l.Info("request", fields...)
			}
		})
	}
}

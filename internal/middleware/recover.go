package middleware

import (
	"fmt"
	"net/http"

	"github.com/doguto/nari-note-sub000/internal/observability"
	"github.com/doguto/nari-note-sub000/internal/response"

	"go.uber.org/zap"
)

// Recoverer turns a panic in any handler into a 500 envelope.
func Recoverer(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				observability.FromContext(r.Context(), log).Error("panic recovered",
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				response.Error(w, r, nil, fmt.Errorf("panic: %v", rec))
			}()

			next.ServeHTTP(w, r)
		})
	}
}

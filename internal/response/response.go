package response

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/doguto/nari-note-sub000/internal/domain"

	"go.uber.org/zap"
)

// Machine-readable error codes. Clients branch on these, not on messages.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeRateLimited  = "RATE_LIMITED"
	CodeTimeout      = "TIMEOUT"
	CodeInternal     = "INTERNAL_SERVER_ERROR"
)

const internalMessage = "internal server error"

// ErrorBody is the payload inside the error envelope.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
}

// Envelope wraps every error response.
type Envelope struct {
	Error ErrorBody `json:"error"`
}

// now is replaced in tests.
var now = time.Now

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the envelope with an explicit status, code and message.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	JSON(w, status, Envelope{Error: ErrorBody{
		Code:      code,
		Message:   message,
		Timestamp: now().UTC().Format(time.RFC3339),
		Path:      r.URL.Path,
	}})
}

// Unauthorized writes a 401 with the given reason.
func Unauthorized(w http.ResponseWriter, r *http.Request, reason string) {
	WriteError(w, r, http.StatusUnauthorized, CodeUnauthorized, reason)
}

// Error maps err onto the envelope. Domain errors keep their message;
// anything unclassified is logged and answered with a generic 500.
func Error(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status, code := Classify(err)
	message := publicMessage(err)

	switch status {
	case http.StatusInternalServerError:
		message = internalMessage
		if log != nil {
			log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		}
	case http.StatusGatewayTimeout:
		message = "request timed out"
		if log != nil {
			log.Warn("request timed out", zap.String("path", r.URL.Path), zap.Error(err))
		}
	}

	WriteError(w, r, status, code, message)
}

// Classify returns the HTTP status and code for err.
func Classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, CodeValidation
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

var kinds = []error{domain.ErrValidation, domain.ErrUnauthorized, domain.ErrNotFound, domain.ErrConflict}

// publicMessage drops the kind prefix and any wrapping context in front of
// it, so "get user: not found: user not found" becomes "user not found".
func publicMessage(err error) string {
	msg := err.Error()
	for _, kind := range kinds {
		if !errors.Is(err, kind) {
			continue
		}
		marker := kind.Error() + ": "
		if i := strings.LastIndex(msg, marker); i >= 0 {
			return msg[i+len(marker):]
		}
		return msg
	}
	return msg
}
